package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/events"
	"github.com/swervelabs/swerve/pkg/indicator"
	"github.com/swervelabs/swerve/pkg/netprobe"
	"github.com/swervelabs/swerve/pkg/startup"
)

var (
	// ErrCheckRunning is returned when a recheck is requested while a check
	// is still in flight.
	ErrCheckRunning = errors.New("startup check already running")
	// ErrShuttingDown is returned when a check is requested after the daemon
	// began shutting down.
	ErrShuttingDown = errors.New("daemon is shutting down")
)

const maxResultHistory = 10

// Replaced in tests.
var (
	newProbe = func(address string) command.Action {
		return netprobe.NewPinger(address)
	}
	newIndicator = func(interval time.Duration, h *events.Hub) command.Action {
		return indicator.NewBlinker(interval, h)
	}
)

// checkRunner owns the startup checks of one daemon. At most one check runs
// at a time; every recheck builds a fresh Check. All checks are interrupted
// when ctx is done.
type checkRunner struct {
	ctx     context.Context
	mu      sync.Mutex
	current *startup.Check
	history []startup.Result
	wg      sync.WaitGroup
}

func newCheckRunner(ctx context.Context) *checkRunner {
	return &checkRunner{ctx: ctx}
}

func reportConnected() command.Action {
	return command.Named("report-connected", command.Func(func(context.Context) error {
		logrus.WithField("radioAddress", conf.RadioAddress()).Info("radio connection established")
		return nil
	}))
}

func reportConnectionFailed() command.Action {
	return command.Named("report-connection-failed", command.Func(func(context.Context) error {
		logrus.WithField("radioAddress", conf.RadioAddress()).Error("radio connection failed, robot will run without field communication")
		return nil
	}))
}

func buildCheck() *startup.Check {
	return startup.NewCheck(
		command.Named("radio-ping", newProbe(conf.RadioAddress())),
		command.Named("indicator", newIndicator(conf.IndicatorInterval(), hub)),
		reportConnected(),
		reportConnectionFailed(),
		conf.StartupTimeout(),
		startup.WithEventHub(hub),
	)
}

// Start launches a new check in the background. It runs regardless of the
// robot mode.
func (r *checkRunner) Start() (*startup.Check, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return nil, ErrShuttingDown
	}
	if r.current != nil && r.current.State() != startup.StateCompleted {
		return nil, ErrCheckRunning
	}

	c := buildCheck()
	r.current = c

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := c.Run(r.ctx)
		if err != nil {
			logrus.WithError(err).WithField("runId", c.ID()).Error("startup check failed")
		}
		if res := c.Result(); res != nil {
			r.record(*res)
		}
	}()

	return c, nil
}

func (r *checkRunner) record(res startup.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, res)
	if len(r.history) > maxResultHistory {
		r.history = r.history[len(r.history)-maxResultHistory:]
	}
}

// Wait blocks until every started check has returned.
func (r *checkRunner) Wait() {
	r.wg.Wait()
}

func (r *checkRunner) Status() startup.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := startup.Status{
		State:   startup.StateIdle,
		Outcome: startup.OutcomePending,
		History: append([]startup.Result(nil), r.history...),
	}
	if len(r.history) > 0 {
		latest := r.history[len(r.history)-1]
		st.Latest = &latest
	}
	if r.current != nil {
		st.ID = r.current.ID()
		st.State = r.current.State()
		st.Phase = r.current.Phase()
		st.Outcome = r.current.Outcome()
		st.Timeout = r.current.Timeout().String()
	}
	return st
}

// Running reports whether a check is in flight.
func (r *checkRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.State() != startup.StateCompleted
}
