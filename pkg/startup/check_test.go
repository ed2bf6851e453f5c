package startup

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/events"
)

// harness records what the check did with its four actions.
type harness struct {
	companionStopped atomic.Bool
	companionRunning atomic.Bool
	successRuns      atomic.Int32
	failureRuns      atomic.Int32
	companionAtExit  atomic.Bool // companion state seen by the branch action
}

func (h *harness) whileProbing() command.Action {
	return command.Func(func(ctx context.Context) error {
		h.companionRunning.Store(true)
		<-ctx.Done()
		h.companionStopped.Store(true)
		return ctx.Err()
	})
}

func (h *harness) onSuccess() command.Action {
	return command.Func(func(context.Context) error {
		h.companionAtExit.Store(h.companionStopped.Load())
		h.successRuns.Add(1)
		return nil
	})
}

func (h *harness) onFailure() command.Action {
	return command.Func(func(context.Context) error {
		h.companionAtExit.Store(h.companionStopped.Load())
		h.failureRuns.Add(1)
		return nil
	})
}

func sleepingProbe(d time.Duration) command.Action {
	return command.Func(func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func blockingProbe() command.Action {
	return command.Func(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

const unit = 5 * time.Millisecond

func TestCheckSuccessPath(t *testing.T) {
	h := &harness{}
	c := NewCheck(sleepingProbe(2*unit), h.whileProbing(), h.onSuccess(), h.onFailure(), 30*unit)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Result())

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, int32(1), h.successRuns.Load())
	assert.Equal(t, int32(0), h.failureRuns.Load())
	assert.True(t, h.companionRunning.Load())
	assert.True(t, h.companionAtExit.Load(), "while-probing action must stop before the branch runs")

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, PhaseDone, c.Phase())
	assert.Equal(t, OutcomeSucceeded, c.Outcome())

	res := c.Result()
	require.NotNil(t, res)
	assert.Equal(t, c.ID(), res.ID)
	assert.False(t, res.ConnectionFailed)
	assert.Equal(t, BranchSuccess, res.Branch)
	assert.Empty(t, res.ProbeError)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestCheckTimeoutPath(t *testing.T) {
	h := &harness{}
	c := NewCheck(blockingProbe(), h.whileProbing(), h.onSuccess(), h.onFailure(), 30*unit)

	start := time.Now()
	require.NoError(t, c.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*unit)

	assert.Equal(t, int32(0), h.successRuns.Load())
	assert.Equal(t, int32(1), h.failureRuns.Load())
	assert.True(t, h.companionAtExit.Load())

	res := c.Result()
	require.NotNil(t, res)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.True(t, res.ConnectionFailed)
	assert.Equal(t, BranchFailure, res.Branch)
	assert.Contains(t, res.ProbeError, context.DeadlineExceeded.Error())
}

func TestCheckProbeIgnoringContextIsStillBounded(t *testing.T) {
	h := &harness{}
	release := make(chan struct{})
	defer close(release)
	stubborn := command.Func(func(context.Context) error {
		<-release
		return nil
	})

	c := NewCheck(stubborn, h.whileProbing(), h.onSuccess(), h.onFailure(), 10*unit)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, OutcomeTimedOut, c.Outcome())
	assert.Equal(t, int32(1), h.failureRuns.Load())
	assert.Equal(t, int32(0), h.successRuns.Load())
}

func TestCheckExplicitProbeFailure(t *testing.T) {
	h := &harness{}
	unreachable := errors.New("radio unreachable")
	probe := command.Func(func(context.Context) error { return unreachable })

	c := NewCheck(probe, h.whileProbing(), h.onSuccess(), h.onFailure(), 30*unit)
	require.NoError(t, c.Run(context.Background()))

	res := c.Result()
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, res.ConnectionFailed)
	assert.Equal(t, "radio unreachable", res.ProbeError)
	assert.Equal(t, int32(1), h.failureRuns.Load())
	assert.Equal(t, int32(0), h.successRuns.Load())
}

func TestCheckInterruptedByCaller(t *testing.T) {
	h := &harness{}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(2*unit, cancel)

	c := NewCheck(blockingProbe(), h.whileProbing(), h.onSuccess(), h.onFailure(), time.Minute)
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, OutcomeInterrupted, c.Outcome())
	assert.Equal(t, int32(1), h.failureRuns.Load())
	assert.Equal(t, int32(0), h.successRuns.Load())
}

func TestCheckCompanionEndingEarlyDoesNotEndProbe(t *testing.T) {
	h := &harness{}
	shortCompanion := command.Func(func(context.Context) error { return errors.New("led strip missing") })

	c := NewCheck(sleepingProbe(4*unit), shortCompanion, h.onSuccess(), h.onFailure(), 30*unit)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, OutcomeSucceeded, c.Outcome())
	assert.Equal(t, int32(1), h.successRuns.Load())
}

func TestCheckRunsOnce(t *testing.T) {
	c := NewCheck(nil, nil, nil, nil, unit)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, OutcomeSucceeded, c.Outcome())

	assert.ErrorIs(t, c.Run(context.Background()), ErrAlreadyRun)
}

func TestCheckBranchErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	c := NewCheck(nil, nil, command.Func(func(context.Context) error { return boom }), nil, unit)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "boom", c.Result().BranchError)
	assert.Equal(t, StateCompleted, c.State())
}

func TestCheckDefaults(t *testing.T) {
	c := NewCheck(nil, nil, nil, nil, 0, WithID("boot"))
	assert.Equal(t, DefaultTimeout, c.Timeout())
	assert.Equal(t, "boot", c.ID())
	assert.True(t, c.RunsWhenDisabled())
	assert.True(t, command.RunsWhenDisabled(c))
	assert.Equal(t, OutcomePending, c.Outcome())
}

func TestCheckPublishesEvents(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	c := NewCheck(nil, nil, nil, nil, unit, WithEventHub(hub), WithID("run-1"))
	require.NoError(t, c.Run(context.Background()))

	var phases []string
	var result *events.StartupResultEvent
	for len(ch) > 0 {
		ev := <-ch
		switch ev.Name {
		case events.StartupPhase:
			p, err := events.DecodeAs[events.StartupPhaseEvent](ev)
			require.NoError(t, err)
			assert.Equal(t, "run-1", p.RunID)
			phases = append(phases, p.To)
		case events.StartupResult:
			r, err := events.DecodeAs[events.StartupResultEvent](ev)
			require.NoError(t, err)
			result = &r
		}
	}

	assert.Equal(t, []string{"Racing", "Barrier", "Branch", "Done"}, phases)
	require.NotNil(t, result)
	assert.Equal(t, "Succeeded", result.Outcome)
	assert.Equal(t, BranchSuccess, result.Branch)
}

// TestCheckExactlyOneBranch straddles the deadline with random probe
// durations and checks that one and only one branch runs every time.
func TestCheckExactlyOneBranch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	timeout := 10 * time.Millisecond

	for i := 0; i < 40; i++ {
		h := &harness{}
		d := time.Duration(rng.Int63n(int64(2 * timeout)))
		c := NewCheck(sleepingProbe(d), h.whileProbing(), h.onSuccess(), h.onFailure(), timeout)
		require.NoError(t, c.Run(context.Background()))

		s, f := h.successRuns.Load(), h.failureRuns.Load()
		if s+f != 1 {
			t.Fatalf("probe %v: success=%d failure=%d, want exactly one branch", d, s, f)
		}
		assert.True(t, h.companionAtExit.Load(), "probe %v: companion outlived probe", d)

		switch c.Outcome() {
		case OutcomeSucceeded:
			assert.Equal(t, int32(1), s)
		case OutcomeTimedOut:
			assert.Equal(t, int32(1), f)
		default:
			t.Fatalf("probe %v: unexpected outcome %s", d, c.Outcome())
		}
	}
}

func TestOutcomeConnectionFailed(t *testing.T) {
	assert.False(t, OutcomePending.ConnectionFailed())
	assert.False(t, OutcomeSucceeded.ConnectionFailed())
	assert.True(t, OutcomeFailed.ConnectionFailed())
	assert.True(t, OutcomeTimedOut.ConnectionFailed())
	assert.True(t, OutcomeInterrupted.ConnectionFailed())
}
