// Command abrsim runs adaptive-bitrate playback simulations and scores them.
//
// Usage:
//
//	abrsim run --algorithm Hybrid --trace capture.rtpdump --format csv
//	abrsim score --config run.yaml --breakdown
//	abrsim sweep --config sweep.yaml --parallel 8
//
// Values come from built-in defaults, then the --config YAML file, then
// flags set on the command line.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "abrsim",
	Short:         "Adaptive-bitrate streaming simulator and QoE scorer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	registerSimulationFlags(rootCmd)
	rootCmd.AddCommand(runCmd, scoreCmd, sweepCmd)
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
