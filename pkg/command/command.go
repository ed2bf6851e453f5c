// Package command defines the units of work scheduled by the robot daemon.
//
// An Action runs until it completes or its context is cancelled. Cancellation
// is how an Action is interrupted; an Action must return promptly once its
// context is done.
package command

import (
	"context"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Action is a unit of work.
type Action interface {
	Run(ctx context.Context) error
}

// Func adapts a plain function to an Action.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}

// DisabledRunner is implemented by actions that may run while the robot is
// disabled.
type DisabledRunner interface {
	RunsWhenDisabled() bool
}

// RunsWhenDisabled reports whether a may run while the robot is disabled.
// Actions that do not implement DisabledRunner may not.
func RunsWhenDisabled(a Action) bool {
	if d, ok := a.(DisabledRunner); ok {
		return d.RunsWhenDisabled()
	}
	return false
}

type none struct{}

func (none) Run(context.Context) error { return nil }
func (none) RunsWhenDisabled() bool    { return true }

// None returns an action that does nothing and completes immediately.
func None() Action {
	return none{}
}

// NamedAction is an Action with a name for logs.
type NamedAction struct {
	Name   string
	Action Action
}

// Named wraps a with a name. Disabled-mode eligibility is inherited from a.
func Named(name string, a Action) *NamedAction {
	return &NamedAction{Name: name, Action: a}
}

func (n *NamedAction) Run(ctx context.Context) error {
	log := logrus.WithField("action", n.Name)
	log.Debug("action started")
	err := n.Action.Run(ctx)
	if err != nil {
		log.WithError(err).Debug("action finished with error")
		return pkgerrors.Wrapf(err, "%s", n.Name)
	}
	log.Debug("action finished")
	return nil
}

func (n *NamedAction) RunsWhenDisabled() bool {
	return RunsWhenDisabled(n.Action)
}

func (n *NamedAction) String() string {
	return n.Name
}

// Mode is the robot's operating mode.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeEnabled  Mode = "enabled"
)

// Gate tracks the robot mode. A robot boots disabled.
type Gate struct {
	mu   sync.RWMutex
	mode Mode
}

func NewGate() *Gate {
	return &Gate{mode: ModeDisabled}
}

func (g *Gate) Mode() Mode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

func (g *Gate) SetMode(m Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode != m {
		logrus.WithFields(logrus.Fields{
			"from": g.mode,
			"to":   m,
		}).Info("robot mode changed")
	}
	g.mode = m
}
