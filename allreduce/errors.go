package allreduce

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/dda-allreduce/reduce"
)

var (
	// ErrInvalidArgument is returned for a call whose
	// configuration is incomplete or inconsistent.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedCombination is returned when no routine
	// exists for the requested data type and operator.
	ErrUnsupportedCombination = reduce.ErrUnsupported

	// ErrEnqueueFailure is returned when the execution
	// queue rejects the launch.
	ErrEnqueueFailure = errors.New("enqueue failure")
)

// enqueueError reports a queue rejection while keeping the
// queue's own error reachable through errors.Is.
type enqueueError struct {
	cause error
}

func (e *enqueueError) Error() string {
	return ErrEnqueueFailure.Error() + ": " + e.cause.Error()
}

func (e *enqueueError) Is(target error) bool {
	return target == ErrEnqueueFailure
}

func (e *enqueueError) Unwrap() error {
	return e.cause
}

func invalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// resultLabel names the outcome of a call for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "enqueued"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnsupportedCombination):
		return "unsupported"
	default:
		return "enqueue_failure"
	}
}
