package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/swervelabs/swerve/pkg/client"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/swerve.sock"
	configPath     = "/etc/swerve.json"
)

var apiClient *client.Client

var (
	gBasic        = "Basic:"
	gVision       = "Vision:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gVision,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: swerve daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the robot service started? Check with 'systemctl status swerve'.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or set allowNonRootAccess in the daemon config and restart it")
	case errors.Is(err, client.ErrConflict):
		fmt.Fprintln(os.Stderr, "\nA startup check is already running. Watch it with 'swerve events'.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swerve",
		Short: "swerve supervises robot startup and serves the vision noise model",
		Long: `swerve supervises robot startup and serves the vision noise model.

At boot the daemon checks that the robot radio answers and reports whether
the robot came up connected. It also serves distance-dependent vision
measurement standard deviations to pose estimation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			// Commands that do not talk to the daemon skip the version check.
			if cmd.Annotations[annotationOffline] == "true" {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. Redeploy both from the same build.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("swerve daemon is too old to report its version. Redeploy both from the same build.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "swerve daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewRecheckCommand(),
		NewModeCommand(),
		NewEventsCommand(),
		NewStdDevCommand(),
		NewFitCommand(),
		NewCheckCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
