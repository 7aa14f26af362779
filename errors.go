package casjobs

import (
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFinished is returned when output is requested for a job that
// has not reached the finished status.
var ErrJobNotFinished = errors.New("job has not finished")

// AuthError reports that the service rejected the client's credentials.
type AuthError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// SubmissionError reports that the service refused an operation, for
// example a malformed query or an exceeded quota.
type SubmissionError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: rejected by service (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// NotFoundError reports that the service does not know the referenced job.
type NotFoundError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// TimeoutError reports that Monitor gave up before the job reached a
// terminal status. Last holds the most recent status observed.
type TimeoutError struct {
	JobID  JobID
	Last   Status
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %d did not reach a terminal status within %s (last status: %s)",
		e.JobID, e.Waited, e.Last)
}

// TransportError reports a network-level failure, an unreadable response,
// or a server-side (5xx) error. StatusCode is zero when no HTTP response
// was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// outcome maps an error onto a short label used for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		authErr      *AuthError
		submitErr    *SubmissionError
		notFoundErr  *NotFoundError
		transportErr *TransportError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &submitErr):
		return "rejected"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "error"
	}
}
