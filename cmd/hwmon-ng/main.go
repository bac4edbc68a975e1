// Hwmon-ng exposes the fan control targets of a Linux hwmon device as objects
// with a Target property, and writes target changes back to sysfs.
//
// Usage:
//
//	hwmon-ng run --config /etc/hwmon-ng.yaml
//	hwmon-ng provision --config /etc/hwmon-ng.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	logLevel   string
	targetMode string
	listen     string
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:   "hwmon-ng",
		Short: "hwmon fan control target daemon",
		Long: `hwmon-ng provisions a control target for every configured fan of a
hwmon device, publishes it on the object model and serves the object tree,
device faults and metrics over HTTP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "./hwmon-ng.yaml", "Path to YAML config")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.targetMode, "target-mode", "", "Target mode override (rpm, pwm)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Set up targets and serve them until interrupted",
		Example: `  hwmon-ng run --config /etc/hwmon-ng.yaml
  hwmon-ng run --config dev.yaml --listen 127.0.0.1:9090 --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), f)
		},
	}
	runCmd.Flags().StringVar(&f.listen, "listen", "", "HTTP listen address override (enables the web API)")

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Set up targets once and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd.OutOrStdout(), f, nil)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hwmon-ng %s\n", version)
		},
	}

	root.AddCommand(runCmd, provisionCmd, versionCmd)
	return root
}
