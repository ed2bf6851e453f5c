package daemon

import (
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/swervelabs/swerve/pkg/config"
)

// ErrNoSchedule is returned by Skip when no schedule is active.
var ErrNoSchedule = errors.New("no active schedule")

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs Task on a cron schedule. PreCheck is consulted before
// every run and a failing PreCheck skips that run.
type Scheduler struct {
	Task     TaskFunc
	PreCheck TaskFunc
	OnError  func(err error)

	mu       sync.Mutex
	expr     string
	schedule cron.Schedule
	nextRun  time.Time
	running  bool

	resetCh chan struct{}
	stopCh  chan struct{}
}

func NewScheduler(task, preCheck TaskFunc, onError func(err error)) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		Task:     task,
		PreCheck: preCheck,
		OnError:  onError,
		resetCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Schedule replaces the schedule. An empty expression clears it.
func (s *Scheduler) Schedule(expr string) error {
	var sh cron.Schedule
	if expr != "" {
		var err error
		sh, err = config.ParseCron(expr)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to parse cron expression %q", expr)
		}
	}

	s.mu.Lock()
	s.expr = expr
	s.schedule = sh
	s.nextRun = time.Time{}
	if sh != nil {
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	s.poke()
	return nil
}

// Skip skips the next scheduled run and returns the run after it.
func (s *Scheduler) Skip() (time.Time, error) {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return time.Time{}, ErrNoSchedule
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	next := s.nextRun
	s.mu.Unlock()

	s.poke()
	return next, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.run()
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Status returns the current expression, the next run time and whether the
// scheduler loop is active.
func (s *Scheduler) Status() (expr string, nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr, s.nextRun, s.running
}

func (s *Scheduler) poke() {
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		s.mu.Lock()
		nextRun := s.nextRun
		s.mu.Unlock()

		var fire <-chan time.Time
		var timer *time.Timer
		if !nextRun.IsZero() {
			timer = time.NewTimer(time.Until(nextRun))
			fire = timer.C
		}

		select {
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.resetCh:
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
			s.fire(nextRun)
		}
	}
}

func (s *Scheduler) fire(at time.Time) {
	s.mu.Lock()
	if s.schedule != nil && s.nextRun.Equal(at) {
		s.nextRun = s.schedule.Next(at)
	}
	s.mu.Unlock()

	log := logrus.WithField("scheduledAt", at.Format(time.DateTime))
	if s.PreCheck != nil {
		if err := s.PreCheck(); err != nil {
			log.WithError(err).Info("skipping scheduled task")
			s.sendError(pkgerrors.Wrap(err, "precheck failed"))
			return
		}
	}

	log.Debug("running scheduled task")
	go func() {
		if err := s.Task(); err != nil {
			s.sendError(pkgerrors.Wrap(err, "task failed"))
		}
	}()
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}
	go s.OnError(err)
}
