package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/config"
	"github.com/swervelabs/swerve/pkg/events"
	"github.com/swervelabs/swerve/pkg/indicator"
	"github.com/swervelabs/swerve/pkg/netprobe"
	"github.com/swervelabs/swerve/pkg/startup"
)

var errConnectionFailed = errors.New("radio connection failed")

func NewCheckCommand() *cobra.Command {
	var (
		target      string
		timeout     time.Duration
		maxAttempts int
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:         "check",
		GroupID:     gAdvanced,
		Annotations: offline,
		Short:       "Run the startup connectivity check once, without the daemon",
		Long: `Run the startup connectivity check once, without the daemon.

The radio at --target is dialed until it answers or the timeout expires.
The command exits non-zero when the connection failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if target == "" || timeout <= 0 {
				c, err := config.NewFile(configPath)
				if err != nil {
					return err
				}
				if target == "" {
					target = c.RadioAddress()
				}
				if timeout <= 0 {
					timeout = c.StartupTimeout()
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := events.NewHub()
			if !quiet {
				ch := hub.Subscribe(events.StartupProbing)
				defer hub.Unsubscribe(ch)
				go printProbing(cmd, ch)
			}

			pinger := netprobe.NewPinger(target)
			pinger.MaxAttempts = maxAttempts

			c := startup.NewCheck(
				command.Named("radio-ping", pinger),
				command.Named("indicator", indicator.NewBlinker(time.Second, hub)),
				nil,
				nil,
				timeout,
				startup.WithEventHub(hub),
			)
			if err := c.Run(ctx); err != nil {
				return err
			}

			r := c.Result()
			cmd.Printf("Radio %s connected: %s\n", target, bool2Text(!r.ConnectionFailed))
			cmd.Printf("  Outcome: %s\n", outcomeText(string(r.Outcome)))
			if r.ProbeError != "" {
				cmd.Printf("  Probe error: %s\n", r.ProbeError)
			}
			cmd.Printf("  Took: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

			if r.ConnectionFailed {
				return fmt.Errorf("%w: %s", errConnectionFailed, r.Outcome)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&target, "target", "t", "", "Radio address as host:port (default from config)")
	f.DurationVar(&timeout, "timeout", 0, "Give up after this long (default from config)")
	f.IntVar(&maxAttempts, "max-attempts", 0, "Fail after this many dials, 0 retries until the timeout")
	f.BoolVarP(&quiet, "quiet", "q", false, "Do not print progress while waiting")

	return cmd
}

func printProbing(cmd *cobra.Command, ch chan events.Event) {
	for ev := range ch {
		p, err := events.DecodeAs[events.StartupProbingEvent](ev)
		if err != nil {
			continue
		}
		cmd.PrintErrf("  waiting for radio (%s)\n", time.Duration(p.ElapsedMillis)*time.Millisecond)
	}
}
