// Package notifications publishes job lifecycle events.
//
// Two sinks are supported: an ntfy topic for human-readable push messages and
// a Kafka topic carrying JSON event records for downstream consumers. Either,
// both, or neither may be configured; NewService returns a fan-out over the
// configured sinks and degrades to a no-op when none are set. Workflow code
// depends only on the Service interface.
package notifications
