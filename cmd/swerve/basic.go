package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/swervelabs/swerve/pkg/client"
	"github.com/swervelabs/swerve/pkg/command"
	"github.com/swervelabs/swerve/pkg/events"
	"github.com/swervelabs/swerve/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: offline,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Show robot mode and the startup check result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStartup()
			if err != nil {
				return err
			}
			mode, err := apiClient.GetMode()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(map[string]any{
					"mode":    mode,
					"startup": st,
				}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			cmd.Println(bold("Robot:"))
			cmd.Printf("  Mode: %s\n", bold("%s", mode))
			cmd.Println()

			cmd.Println(bold("Startup check:"))
			cmd.Printf("  Current run: %s (%s)\n", bold("%s", st.State), st.ID)
			if st.Phase != "" {
				cmd.Printf("  Phase: %s\n", st.Phase)
			}
			cmd.Printf("  Outcome: %s\n", outcomeText(string(st.Outcome)))
			if st.Timeout != "" {
				cmd.Printf("  Timeout: %s\n", st.Timeout)
			}
			if st.NextRecheck != nil {
				cmd.Printf("  Next recheck: %s (%s)\n", st.NextRecheck.Local().Format(time.DateTime), st.RecheckCron)
			}

			if st.Latest == nil {
				cmd.Println("  No check has completed yet.")
				return nil
			}

			r := st.Latest
			cmd.Println()
			cmd.Println(bold("Last completed check:"))
			cmd.Printf("  Radio connected: %s\n", bool2Text(!r.ConnectionFailed))
			cmd.Printf("  Outcome: %s\n", outcomeText(string(r.Outcome)))
			cmd.Printf("  Branch: %s\n", r.Branch)
			if r.ProbeError != "" {
				cmd.Printf("  Probe error: %s\n", r.ProbeError)
			}
			if r.BranchError != "" {
				cmd.Printf("  Branch error: %s\n", r.BranchError)
			}
			cmd.Printf("  Finished: %s (took %s)\n",
				r.FinishedAt.Local().Format(time.DateTime),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
			if len(st.History) > 1 {
				cmd.Printf("  Recent outcomes:")
				for _, h := range st.History {
					cmd.Printf(" %s", outcomeText(string(h.Outcome)))
				}
				cmd.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

const recheckPollInterval = 250 * time.Millisecond

var errNoRecheckSchedule = errors.New("no recheck schedule is active, set recheckCron in the daemon config")

func NewRecheckCommand() *cobra.Command {
	var (
		wait     bool
		skipNext bool
	)

	cmd := &cobra.Command{
		Use:     "recheck",
		GroupID: gBasic,
		Short:   "Run the startup connectivity check again",
		Long: `Run the startup connectivity check again.

The daemon refuses a recheck while a check is still running.
With --skip-next no check is run; the next scheduled recheck is skipped instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if skipNext {
				next, err := apiClient.SkipRecheck()
				if errors.Is(err, client.ErrConflict) {
					return errNoRecheckSchedule
				}
				if err != nil {
					return err
				}
				cmd.Printf("Next recheck: %s\n", next.Local().Format(time.DateTime))
				return nil
			}

			id, err := apiClient.Recheck()
			if err != nil {
				return err
			}
			logrus.WithField("runId", id).Info("startup recheck started")
			if !wait {
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(recheckPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}

				st, err := apiClient.GetStartup()
				if err != nil {
					return err
				}
				// A scheduled recheck may already have replaced ours as the latest.
				r := st.Find(id)
				if r == nil {
					continue
				}
				cmd.Printf("Radio connected: %s\n", bool2Text(!r.ConnectionFailed))
				cmd.Printf("Outcome: %s, branch: %s\n", outcomeText(string(r.Outcome)), r.Branch)
				return nil
			}
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the check to complete")
	cmd.Flags().BoolVar(&skipNext, "skip-next", false, "Skip the next scheduled recheck instead of running one now")
	cmd.MarkFlagsMutuallyExclusive("wait", "skip-next")

	return cmd
}

func NewModeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mode",
		GroupID: gBasic,
		Short:   "Show or change the robot mode",
		Long: `Show or change the robot mode.

The robot boots disabled. Only actions that are allowed while disabled,
such as the startup connectivity check, run until it is enabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := apiClient.GetMode()
			if err != nil {
				return err
			}
			cmd.Println(bold("%s", m))
			return nil
		},
	}

	set := func(m command.Mode) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.SetMode(m)
			if err != nil {
				return fmt.Errorf("failed to set mode to %s: %w", m, err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable the robot",
			Args:  cobra.NoArgs,
			RunE:  set(command.ModeEnabled),
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable the robot",
			Args:  cobra.NoArgs,
			RunE:  set(command.ModeDisabled),
		},
	)

	return cmd
}

func NewEventsCommand() *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:     "events",
		GroupID: gAdvanced,
		Short:   "Stream daemon events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return apiClient.Events(ctx, func(ev events.Event) bool {
				cmd.Printf("%s %s %s\n", time.Now().Format(time.TimeOnly), bold("%s", ev.Name), string(ev.Data))
				return true
			}, names...)
		},
	}

	cmd.Flags().StringSliceVarP(&names, "name", "n", nil,
		fmt.Sprintf("Only show these events (%s, %s, %s, %s)", events.StartupPhase, events.StartupProbing, events.StartupResult, events.RobotMode))

	return cmd
}
