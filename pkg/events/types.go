package events

import "encoding/json"

// Event names published by the daemon.
const (
	StartupPhase   = "startup.phase"
	StartupProbing = "startup.probing"
	StartupResult  = "startup.result"
	RobotMode      = "robot.mode"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// StartupPhaseEvent is the payload for startup.phase.
type StartupPhaseEvent struct {
	RunID string `json:"runId"`
	From  string `json:"from"`
	To    string `json:"to"`
	Ts    int64  `json:"ts"`
}

// StartupProbingEvent is the heartbeat published while the radio is pinged.
type StartupProbingEvent struct {
	ElapsedMillis int64 `json:"elapsedMillis"`
	Beat          int   `json:"beat"`
	Ts            int64 `json:"ts"`
}

// StartupResultEvent is the payload for startup.result.
type StartupResultEvent struct {
	RunID   string `json:"runId"`
	Outcome string `json:"outcome"`
	Branch  string `json:"branch"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// RobotModeEvent is the payload for robot.mode.
type RobotModeEvent struct {
	Mode string `json:"mode"`
	Ts   int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.StartupResultEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Outcome, payload.Branch)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
