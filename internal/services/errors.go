package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrTransient marks network, timeout, and rate-limit failures that are
	// safe to retry with backoff.
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks collaborator output that fell outside the schema.
	// Validation failures are coerced to defaults and logged, never fatal.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks an optimistic-concurrency write collision. Callers
	// retry from a fresh read.
	ErrConflict = errors.New("write conflict")
	// ErrPermanent marks malformed payloads and exhausted retry budgets.
	// Permanent failures route to the dead-letter path.
	ErrPermanent = errors.New("permanent failure")
	// ErrNotFound marks a missing record or blob.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failed operation should be redelivered.
// Permanent, validation, and configuration failures are not retried;
// everything else, including untagged errors, is treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// Classify maps an arbitrary error onto the pipeline taxonomy. Errors already
// tagged by Wrap keep their marker; anything untagged, including deadline and
// network timeouts, is wrapped as transient. Wrapping preserves the original
// message so dead-lettered work keeps its failure cause for replay.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTransient),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrPermanent),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConfiguration):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// ErrMalformedItem marks a single feed item that cannot be ingested.
// Malformed items are skipped and logged without failing the feed pass.
var ErrMalformedItem = errors.New("malformed item")

// MalformedItem tags a per-item defect that should be skipped, not retried.
func MalformedItem(message string) error {
	return fmt.Errorf("%w: %s", ErrMalformedItem, message)
}

// IsMalformedItem reports whether err describes a skippable feed item.
func IsMalformedItem(err error) bool {
	return errors.Is(err, ErrMalformedItem)
}

// IsNotFound reports whether err describes a missing record or blob.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err describes an optimistic-concurrency or
// uniqueness collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
