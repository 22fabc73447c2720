package smoke

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// NavigationError means the target could not be loaded at all. The run stops
// checking but still attempts a failure screenshot.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("failed to navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ReadinessTimeoutError is recoverable: the checklist still runs against
// whatever the page rendered.
type ReadinessTimeoutError struct {
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e *ReadinessTimeoutError) Error() string {
	msg := fmt.Sprintf("readiness selector %q did not become visible within %s", e.Selector, e.Timeout)
	if e.Err != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Err)
	}
	return msg
}

func (e *ReadinessTimeoutError) Unwrap() error { return e.Err }

type ExpectationCheckError struct {
	Text string
	Err  error
}

func (e *ExpectationCheckError) Error() string {
	return fmt.Sprintf("failed to check %q: %v", e.Text, e.Err)
}

func (e *ExpectationCheckError) Unwrap() error { return e.Err }

type EvidenceCaptureError struct {
	Checkpoint string
	Err        error
}

func (e *EvidenceCaptureError) Error() string {
	return fmt.Sprintf("failed to capture %q: %v", e.Checkpoint, e.Err)
}

func (e *EvidenceCaptureError) Unwrap() error { return e.Err }

// ErrChecksFailed is returned when every suite ran but at least one did not pass.
var ErrChecksFailed = errors.New("smoke checks failed")

// UsageError marks invalid invocations and configuration.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func NewUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &UsageError{Err: err}
}
