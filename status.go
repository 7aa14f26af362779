package casjobs

import "strconv"

// Status is a job status code as reported by the service. The client never
// infers a status; it only relays what the service said, and unknown codes
// are preserved as-is.
type Status int

const (
	StatusReady     Status = 0
	StatusStarted   Status = 1
	StatusCanceling Status = 2
	StatusCancelled Status = 3
	StatusFailed    Status = 4
	StatusFinished  Status = 5
)

var statusNames = [...]string{
	StatusReady:     "ready",
	StatusStarted:   "started",
	StatusCanceling: "canceling",
	StatusCancelled: "cancelled",
	StatusFailed:    "failed",
	StatusFinished:  "finished",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether the job will never change status again.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusFailed || s == StatusFinished
}
