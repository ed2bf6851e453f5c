package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swervelabs/swerve/pkg/events"
)

func TestBlinkerPublishesUntilCancelled(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	b := NewBlinker(2*time.Millisecond, hub)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	ev := <-ch
	assert.Equal(t, events.StartupProbing, ev.Name)
	p, err := events.DecodeAs[events.StartupProbingEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Beat)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blinker did not stop after cancel")
	}
}

func TestBlinkerDefaults(t *testing.T) {
	b := NewBlinker(0, nil)
	assert.Equal(t, 500*time.Millisecond, b.Interval)
	assert.True(t, b.RunsWhenDisabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Run(ctx))
}
