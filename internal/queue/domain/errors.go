package domain

import "errors"

var (
	// ErrUnknownJobType is returned by enqueue when the job type is not recognized
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrInvalidPriority is returned by enqueue when the priority is not recognized
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrQueueStopped is returned when submitting work to a stopped queue
	ErrQueueStopped = errors.New("queue is stopped")

	// ErrJobNotFound is returned when a job id is not known to the queue
	ErrJobNotFound = errors.New("job not found")
)

// PermanentError wraps executor errors that must not be retried even when
// the job still has attempts left.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent error: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a new permanent error
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
