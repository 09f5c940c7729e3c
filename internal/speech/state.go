package speech

import "strings"

// JobState is the closed set of job states this client distinguishes. The
// remote vocabulary is not exhaustively enumerated, so anything unrecognized
// maps to StateUnknown and is treated as still in flight.
type JobState int

const (
	StateUnknown JobState = iota
	StatePending
	StateRunning
	StateCompleted
	StateFailed
)

func ParseJobState(raw string) JobState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "accepted":
		return StatePending
	case "running", "processing", "in progress", "in_progress":
		return StateRunning
	case "completed", "succeeded", "success":
		return StateCompleted
	case "failed", "error":
		return StateFailed
	default:
		return StateUnknown
	}
}

func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
