package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 16

// Hub fans events out to subscribers and remembers the latest event of each
// name, so a dashboard that connects after boot can still learn the robot
// mode and the last startup result. A nil *Hub drops everything.
type Hub struct {
	mu sync.RWMutex
	// Subscriber channel to the event names it wants. A nil set means all.
	subs map[chan Event]map[string]struct{}
	last map[string]Event
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Event]map[string]struct{}),
		last: make(map[string]Event),
	}
}

// Subscribe returns a channel receiving events with the given names, or
// every event when no names are given. A subscriber that falls behind misses
// events instead of blocking publishers.
func (h *Hub) Subscribe(names ...string) chan Event {
	var filter map[string]struct{}
	if len(names) > 0 {
		filter = make(map[string]struct{}, len(names))
		for _, n := range names {
			filter[n] = struct{}{}
		}
	}

	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = filter
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Last returns the most recent event published under name.
func (h *Hub) Last(name string) (Event, bool) {
	if h == nil {
		return Event{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev, ok := h.last[name]
	return ev, ok
}

func (h *Hub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Warn("failed to marshal event")
		return
	}
	msg := Event{Name: name, Data: b}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[name] = msg
	for ch, filter := range h.subs {
		if filter != nil {
			if _, ok := filter[name]; !ok {
				continue
			}
		}
		select {
		case ch <- msg:
		default:
			logrus.WithField("event", name).Trace("subscriber is behind, event dropped")
		}
	}
}

// PublishPhase publishes a startup.phase transition of run runID.
func (h *Hub) PublishPhase(runID, from, to string) {
	h.Publish(StartupPhase, StartupPhaseEvent{RunID: runID, From: from, To: to, Ts: time.Now().Unix()})
}

// PublishProbing publishes the heartbeat shown while the radio is pinged.
func (h *Hub) PublishProbing(at time.Time, elapsed time.Duration, beat int) {
	h.Publish(StartupProbing, StartupProbingEvent{ElapsedMillis: elapsed.Milliseconds(), Beat: beat, Ts: at.Unix()})
}

// PublishResult publishes the final outcome of run runID.
func (h *Hub) PublishResult(runID, outcome, branch, message string) {
	h.Publish(StartupResult, StartupResultEvent{
		RunID:   runID,
		Outcome: outcome,
		Branch:  branch,
		Message: message,
		Ts:      time.Now().Unix(),
	})
}

// PublishMode publishes a robot mode change.
func (h *Hub) PublishMode(mode string) {
	h.Publish(RobotMode, RobotModeEvent{Mode: mode, Ts: time.Now().Unix()})
}
