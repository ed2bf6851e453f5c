// Package startup runs the connectivity check performed when the robot
// boots: the radio is pinged under a deadline while an indicator runs
// alongside it, then exactly one of a success or failure action follows.
package startup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/events"
)

// DefaultTimeout bounds the probe when no timeout is given.
const DefaultTimeout = 30 * time.Second

// ErrAlreadyRun is returned when a Check is run a second time.
var ErrAlreadyRun = errors.New("startup check already run")

// Check is a single startup connectivity check. It is not reusable: create
// a new Check for every run.
type Check struct {
	probe        command.Action
	whileProbing command.Action
	onSuccess    command.Action
	onFailure    command.Action
	timeout      time.Duration
	hub          *events.Hub
	id           string

	mu      sync.Mutex
	state   State
	phase   Phase
	outcome Outcome
	result  *Result
}

var _ command.Action = &Check{}

// Option configures a Check.
type Option func(*Check)

// WithEventHub publishes phase changes and the final result on h.
func WithEventHub(h *events.Hub) Option {
	return func(c *Check) {
		c.hub = h
	}
}

// WithID overrides the generated run ID.
func WithID(id string) Option {
	return func(c *Check) {
		c.id = id
	}
}

// NewCheck creates a check. Nil actions are replaced with command.None(), and
// a non-positive timeout with DefaultTimeout.
func NewCheck(probe, whileProbing, onSuccess, onFailure command.Action, timeout time.Duration, opts ...Option) *Check {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Check{
		probe:        orNone(probe),
		whileProbing: orNone(whileProbing),
		onSuccess:    orNone(onSuccess),
		onFailure:    orNone(onFailure),
		timeout:      timeout,
		id:           uuid.NewString(),
		state:        StateIdle,
		outcome:      OutcomePending,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func orNone(a command.Action) command.Action {
	if a == nil {
		return command.None()
	}
	return a
}

// RunsWhenDisabled is always true: the check runs at boot, before anyone
// enables the robot.
func (c *Check) RunsWhenDisabled() bool {
	return true
}

// ID returns the run ID.
func (c *Check) ID() string {
	return c.id
}

// Timeout returns the probe deadline.
func (c *Check) Timeout() time.Duration {
	return c.timeout
}

func (c *Check) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Check) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Check) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Result returns a copy of the result, or nil until the check completes.
func (c *Check) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// Run performs the check. The returned error is non-nil only if the check
// was already run or the selected branch action failed; a failed connection
// is reported through the failure branch and Result, not as an error.
func (c *Check) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyRun
	}
	c.state = StateRunning
	c.mu.Unlock()

	res := &Result{ID: c.id, StartedAt: time.Now()}
	log := logrus.WithFields(logrus.Fields{
		"runId":   c.id,
		"timeout": c.timeout,
	})
	log.Info("startup connectivity check started")

	c.setPhase(PhaseRacing)
	probeErr := c.race(ctx)

	// Every goroutine started while racing has been joined, so the outcome
	// latched there is final.
	c.setPhase(PhaseBarrier)
	outcome := c.Outcome()
	connectionFailed := outcome.ConnectionFailed()

	c.setPhase(PhaseBranch)
	branch, action := BranchSuccess, c.onSuccess
	if connectionFailed {
		branch, action = BranchFailure, c.onFailure
	}
	log = log.WithFields(logrus.Fields{
		"outcome": outcome,
		"branch":  branch,
	})
	if probeErr != nil {
		log = log.WithField("probeError", probeErr.Error())
	}
	log.Info("startup connectivity probe resolved")
	branchErr := action.Run(ctx)

	res.Outcome = outcome
	res.ConnectionFailed = connectionFailed
	res.Branch = branch
	if probeErr != nil {
		res.ProbeError = probeErr.Error()
	}
	if branchErr != nil {
		res.BranchError = branchErr.Error()
		log.WithError(branchErr).Error("startup branch action failed")
	}
	res.FinishedAt = time.Now()

	c.mu.Lock()
	c.result = res
	c.state = StateCompleted
	c.mu.Unlock()
	c.setPhase(PhaseDone)

	c.hub.PublishResult(c.id, string(outcome), branch, res.ProbeError)
	log.WithField("took", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond)).Info("startup connectivity check completed")

	if branchErr != nil {
		return pkgerrors.Wrapf(branchErr, "%s branch", branch)
	}
	return nil
}

// race runs the probe under the deadline with whileProbing attached to it.
// whileProbing is cancelled as soon as the probe is resolved and has
// returned before race does.
func (c *Check) race(ctx context.Context) error {
	probeCtx, cancelProbe := context.WithTimeout(ctx, c.timeout)
	defer cancelProbe()
	companionCtx, stopCompanion := context.WithCancel(ctx)
	defer stopCompanion()

	var g errgroup.Group
	g.Go(func() error {
		err := c.whileProbing.Run(companionCtx)
		if err != nil && companionCtx.Err() == nil {
			logrus.WithError(err).WithField("runId", c.id).Warn("while-probing action ended with error")
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- c.probe.Run(probeCtx)
	}()

	var probeErr error
	select {
	case probeErr = <-done:
		c.resolve(c.classify(ctx, probeCtx, probeErr))
	case <-probeCtx.Done():
		select {
		case probeErr = <-done:
			// Finished right at the deadline.
			c.resolve(c.classify(ctx, probeCtx, probeErr))
		default:
			probeErr = probeCtx.Err()
			if ctx.Err() != nil {
				probeErr = ctx.Err()
				c.resolve(OutcomeInterrupted)
			} else {
				c.resolve(OutcomeTimedOut)
			}
		}
	}

	cancelProbe()
	stopCompanion()
	_ = g.Wait()
	return probeErr
}

func (c *Check) classify(ctx, probeCtx context.Context, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case ctx.Err() != nil:
		return OutcomeInterrupted
	case errors.Is(probeCtx.Err(), context.DeadlineExceeded):
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}

// resolve latches the probe outcome. Only the first call has an effect.
func (c *Check) resolve(o Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome != OutcomePending {
		return false
	}
	c.outcome = o
	return true
}

func (c *Check) setPhase(p Phase) {
	c.mu.Lock()
	prev := c.phase
	c.phase = p
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"runId": c.id,
		"from":  prev,
		"to":    p,
	}).Debug("startup check phase changed")

	c.hub.PublishPhase(c.id, string(prev), string(p))
}
