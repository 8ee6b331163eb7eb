package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vmsim/vmsim/sim/datacenter"
	"github.com/vmsim/vmsim/sim/policy"
	"github.com/vmsim/vmsim/sim/workload"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "Discrete-event simulator for VM placement and migration in a data center",
}

// newRunCmd builds the run subcommand with its own flag set.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a data center scenario",
		Run: func(cmd *cobra.Command, args []string) {
			v, err := loadSettings(cmd.Flags())
			if err != nil {
				logrus.Fatalf("%v", err)
			}

			// Set up logging
			level, err := logrus.ParseLevel(v.GetString("log"))
			if err != nil {
				logrus.Fatalf("Invalid log level: %s", v.GetString("log"))
			}
			logrus.SetLevel(level)

			if err := runScenario(v, cmd.OutOrStdout()); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Info("Simulation complete.")
		},
	}

	runCmd.Flags().String("scenario", "", "Path to the YAML scenario file")
	runCmd.Flags().String("policy", "", "Optional YAML policy file replacing the scenario's policy section")
	runCmd.Flags().String("config", "", "Optional YAML file with run settings (same keys as the flags)")
	runCmd.Flags().Int64("seed", 0, "Override the scenario seed")
	runCmd.Flags().Float64("horizon", 0, "Override the simulation horizon in seconds (0 runs until all tasks finish)")
	runCmd.Flags().String("log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().String("trace", "", "Decision trace level (none, decisions, full)")

	// Allocation policy overrides
	runCmd.Flags().Float64("upper", 0, "Upper utilization threshold")
	runCmd.Flags().Float64("lower", 0, "Lower utilization threshold")
	runCmd.Flags().String("threshold-mode", "", "Upper threshold mode (static, mad, iqr)")
	runCmd.Flags().Float64("safety", 0, "Safety parameter for adaptive thresholds")
	runCmd.Flags().String("selection", "", "VM selection policy (minimum-utilization, minimum-migration-time, random, maximum-correlation)")
	runCmd.Flags().Float64("interval", 0, "Scheduling interval in seconds (0 recomputes only on task completion)")
	runCmd.Flags().Bool("no-migrations", false, "Disable the periodic migration pass")

	return runCmd
}

// runScenario loads the scenario named in v, applies the layered overrides, runs it
// and writes the report to out.
func runScenario(v *viper.Viper, out io.Writer) error {
	path := v.GetString("scenario")
	if path == "" {
		return fmt.Errorf("--scenario is required")
	}
	spec, err := workload.LoadScenario(path)
	if err != nil {
		return err
	}
	if policyPath := v.GetString("policy"); policyPath != "" {
		bundle, err := policy.LoadBundle(policyPath)
		if err != nil {
			return err
		}
		spec.Policy = *bundle
	}
	applyOverrides(v, spec)

	logrus.Infof("Starting scenario %q: %d hosts, %d VMs, seed %d", spec.Name, spec.NumHosts(), spec.NumVMs(), spec.Seed)
	report, err := datacenter.RunScenario(spec)
	if err != nil {
		return err
	}
	report.Print(out)
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
