package startup

import "time"

// Outcome is the resolved result of the radio probe.
type Outcome string

const (
	// OutcomePending means the probe has not finished yet.
	OutcomePending Outcome = "Pending"
	// OutcomeSucceeded means the probe completed on its own before the deadline.
	OutcomeSucceeded Outcome = "Succeeded"
	// OutcomeFailed means the probe returned an error of its own before the deadline.
	OutcomeFailed Outcome = "Failed"
	// OutcomeTimedOut means the deadline fired before the probe completed.
	OutcomeTimedOut Outcome = "TimedOut"
	// OutcomeInterrupted means the check itself was cancelled by its caller.
	OutcomeInterrupted Outcome = "Interrupted"
)

// ConnectionFailed reports whether the outcome selects the failure branch.
func (o Outcome) ConnectionFailed() bool {
	return o != OutcomeSucceeded && o != OutcomePending
}

// State is the lifecycle state of a Check.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
)

// Phase is the step a running Check is in.
type Phase string

const (
	PhaseNone    Phase = ""
	PhaseRacing  Phase = "Racing"
	PhaseBarrier Phase = "Barrier"
	PhaseBranch  Phase = "Branch"
	PhaseDone    Phase = "Done"
)

// Branch names.
const (
	BranchSuccess = "success"
	BranchFailure = "failure"
)

// Result is the record of one completed Check.
type Result struct {
	ID               string    `json:"id"`
	Outcome          Outcome   `json:"outcome"`
	ConnectionFailed bool      `json:"connectionFailed"`
	ProbeError       string    `json:"probeError,omitempty"`
	Branch           string    `json:"branch"`
	BranchError      string    `json:"branchError,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}

// Status is a snapshot of the current check and the recent results.
type Status struct {
	ID      string  `json:"id,omitempty"`
	State   State   `json:"state"`
	Phase   Phase   `json:"phase"`
	Outcome Outcome `json:"outcome"`
	Timeout string  `json:"timeout,omitempty"`
	// Latest is the last completed check.
	Latest  *Result  `json:"latest,omitempty"`
	History []Result `json:"history,omitempty"`

	RecheckCron string     `json:"recheckCron,omitempty"`
	NextRecheck *time.Time `json:"nextRecheck,omitempty"`
}

// Find returns the completed run with the given id from the history.
func (s *Status) Find(id string) *Result {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].ID == id {
			return &s.History[i]
		}
	}
	return nil
}
