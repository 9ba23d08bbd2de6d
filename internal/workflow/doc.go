// Package workflow runs queued jobs with a pool of workers.
//
// The Manager receives job ids from the configured transport, claims each job
// atomically in the store (queued -> running), and dispatches it to the
// handler registered for its type. Deliveries for jobs that are already
// running or finished are dropped, so transports may deliver at least once.
// Jobs of types without a handler (ingest_voice) stay queued for external
// workers.
//
// While a handler runs, a heartbeat loop refreshes the job's heartbeat and
// cancels the handler context once the job is canceled in the store. A
// reclaimer resets running jobs whose heartbeat went stale back to queued and
// announces them on the transport again. Stages within one job are strictly
// sequential; separate jobs run in parallel across workers.
package workflow
