// Package queueaccess gives the CLI one job API whether or not the daemon is
// running. OpenWithFallback prefers the daemon's HTTP API and falls back to
// opening the SQLite store directly.
package queueaccess
