// Package netprobe checks that the robot radio answers on the network.
package netprobe

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jpillora/backoff"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUnreachable is returned when MaxAttempts dials all failed.
var ErrUnreachable = errors.New("radio unreachable")

// DialFunc dials a network address.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Pinger dials Address over TCP until it answers. It is a command.Action.
type Pinger struct {
	Address     string
	DialTimeout time.Duration
	// MaxAttempts bounds the number of dials. Zero retries until the context
	// is done.
	MaxAttempts int
	Backoff     *backoff.Backoff
	Dial        DialFunc
}

// NewPinger returns a Pinger for address with the reconnect spacing used by
// the robot clients.
func NewPinger(address string) *Pinger {
	return &Pinger{
		Address:     address,
		DialTimeout: 2 * time.Second,
		Backoff: &backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    5 * time.Second,
			Factor: 2,
			Jitter: false,
		},
	}
}

func (p *Pinger) dial(ctx context.Context) error {
	dctx := ctx
	if p.DialTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.DialTimeout)
		defer cancel()
	}

	dial := p.Dial
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}
	conn, err := dial(dctx, "tcp", p.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Run returns nil as soon as a dial succeeds. It returns the context error
// when ctx is done first, and ErrUnreachable when MaxAttempts is exhausted.
func (p *Pinger) Run(ctx context.Context) error {
	b := p.Backoff
	if b == nil {
		b = &backoff.Backoff{}
	}
	b.Reset()

	log := logrus.WithField("address", p.Address)
	for attempt := 1; ; attempt++ {
		err := p.dial(ctx)
		if err == nil {
			log.WithField("attempt", attempt).Info("radio answered")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return pkgerrors.Wrapf(ErrUnreachable, "%s after %d attempts: %v", p.Address, attempt, err)
		}

		wait := b.Duration()
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"retryIn": wait,
		}).Debug("radio did not answer")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
