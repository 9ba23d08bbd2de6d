// Package preflight provides readiness checks for the external services
// and filesystem paths vidintel depends on.
//
// The CLI "vidintel status" and "vidintel config validate" commands run
// RunAll and render each Result. Every check is gated by its config
// setting, so disabled features are skipped rather than reported as failures.
package preflight
