package netprobe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}
}

func TestPingerReachesListener(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p := NewPinger(l.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, p.Run(ctx))
}

func TestPingerRetriesUntilDialSucceeds(t *testing.T) {
	calls := 0
	p := &Pinger{
		Address: "radio:80",
		Backoff: fastBackoff(),
		Dial: func(context.Context, string, string) (net.Conn, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("connection refused")
			}
			c1, c2 := net.Pipe()
			c2.Close()
			return c1, nil
		},
	}

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestPingerStopsWhenContextDone(t *testing.T) {
	p := &Pinger{
		Address: "radio:80",
		Backoff: fastBackoff(),
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("no route to host")
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPingerMaxAttempts(t *testing.T) {
	calls := 0
	p := &Pinger{
		Address:     "radio:80",
		MaxAttempts: 2,
		Backoff:     fastBackoff(),
		Dial: func(context.Context, string, string) (net.Conn, error) {
			calls++
			return nil, errors.New("connection refused")
		},
	}

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, 2, calls)
}
