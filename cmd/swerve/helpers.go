package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"

	"github.com/swervelabs/swerve/pkg/version"
)

// annotationOffline marks commands that work without a running daemon.
const annotationOffline = "swerve/offline"

var offline = map[string]string{annotationOffline: "true"}

func parseFloatArg(args []string, valueName string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

func getVersion() (clientVersion, daemonVersion string, err error) {
	daemonVersion, err = apiClient.GetVersion()
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func outcomeText(outcome string) string {
	switch outcome {
	case "Succeeded":
		return color.New(color.Bold, color.FgGreen).Sprint(outcome)
	case "Pending":
		return color.New(color.Bold, color.FgYellow).Sprint(outcome)
	default:
		return color.New(color.Bold, color.FgRed).Sprint(outcome)
	}
}
