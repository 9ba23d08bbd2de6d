// Package transport hands queued job ids to workflow workers.
//
// The store backend polls SQLite for queued rows and needs no extra
// infrastructure. The redis backend pushes ids onto a list and workers block
// on BRPOP. Delivery is at-least-once in both cases; the workflow manager's
// atomic claim makes duplicate deliveries harmless.
package transport
