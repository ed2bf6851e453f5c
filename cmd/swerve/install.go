package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/swervelabs/swerve/pkg/config"
	daemonutils "github.com/swervelabs/swerve/pkg/utils/daemon"
)

var gInstallation = "Installation:"

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

func NewInstallCommand() *cobra.Command {
	var (
		allowNonRootAccess bool
		radioAddress       string
	)

	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Install swerve as a systemd service",
		GroupID:     gInstallation,
		Annotations: offline,
		Long: `Install swerve daemon as a systemd service.

This makes swerve start on boot and run the startup connectivity check. You must run this command as root.

By default, only root is allowed to access the daemon socket. Use --allow-non-root-access to let other users run the client without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if radioAddress != "" {
				conf.SetRadioAddress(radioAddress)
			}
			logrus.WithFields(conf.LogrusFields()).Info("installing with config")

			// Save first so the service reads the new config when it starts.
			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath)
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %w", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()
			cmd.Printf("systemd will run the current binary (%s) at boot, so do not move it. If you do, run `swerve install' again.\n", exePath)

			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access swerve daemon.")
	f.StringVar(&radioAddress, "radio-address", "", "Radio address to check at boot, as host:port.")

	return cmd
}

func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "uninstall",
		Short:       "Uninstall the swerve systemd service",
		GroupID:     gInstallation,
		Annotations: offline,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %w", err)
			}

			cmd.Printf("Successfully uninstalled. Your config is kept in %s.\n", configPath)
			return nil
		},
	}
}
