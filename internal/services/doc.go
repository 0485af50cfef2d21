// Package services defines the shared error taxonomy and context helpers used
// by the pipeline stages. Errors are tagged with sentinel markers so the queue
// consumers can decide between redelivery with backoff and the dead-letter path.
package services
