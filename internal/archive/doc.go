// Package archive copies finished job records to durable storage.
//
// After a job completes, the workflow manager hands the job (including its
// output JSON) to the configured Archiver. The fs backend writes
// <dir>/<job_type>/<job_id>.json atomically; the minio backend uploads the
// same object key to an S3-compatible bucket. Archiving is best effort and
// never changes the job's status.
package archive
