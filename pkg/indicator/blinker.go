// Package indicator signals that the robot is still waiting for its radio.
package indicator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swervelabs/swerve/pkg/events"
)

// Blinker publishes a heartbeat every Interval until it is cancelled. It is
// meant to run alongside the radio probe.
type Blinker struct {
	Interval time.Duration
	Hub      *events.Hub
}

func NewBlinker(interval time.Duration, hub *events.Hub) *Blinker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Blinker{Interval: interval, Hub: hub}
}

// Run blinks until ctx is done and then returns nil.
func (b *Blinker) Run(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for beat := 1; ; beat++ {
		select {
		case <-ctx.Done():
			logrus.WithField("beats", beat-1).Debug("indicator stopped")
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			logrus.WithField("elapsed", elapsed.Round(time.Second)).Trace("waiting for radio")
			b.Hub.PublishProbing(now, elapsed, beat)
		}
	}
}

func (b *Blinker) RunsWhenDisabled() bool {
	return true
}
