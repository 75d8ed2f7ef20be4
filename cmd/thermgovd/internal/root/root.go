// Package root wires thermgovd's cobra command tree.
package root

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wrale/thermal-governor/cmd/thermgovd/options"
	"github.com/wrale/thermal-governor/internal/governor"
)

// New builds the thermgovd root command.
func New() *cobra.Command {
	cfg := options.New()
	var fanPaths string

	cmd := &cobra.Command{
		Use:   "thermgovd",
		Short: "Closed-loop thermal governor daemon",
		Long: `thermgovd replaces the static cpufreq governor with a closed-loop
controller that watches package temperature and fan speed and adjusts
per-CPU frequency caps, minimums and energy/performance hints in response.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.FanPaths = splitNonEmpty(fanPaths)
			return runDaemon(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.SysfsRoot, "sysfs-root", cfg.SysfsRoot, "root of the per-CPU cpufreq sysfs tree")
	flags.StringVar(&cfg.TempPath, "temp-path", cfg.TempPath, "package temperature sysfs file (millidegrees C)")
	flags.StringVar(&fanPaths, "fan-paths", "", "comma-separated fan tachometer sysfs files")
	flags.StringVar(&cfg.HWPBoostPath, "hwp-boost-path", cfg.HWPBoostPath, "hwp_dynamic_boost sysfs file")
	flags.StringVar(&cfg.StatePath, "state-path", cfg.StatePath, "path to the persisted thermal-table snapshot")
	flags.StringVar(&cfg.InitialProfile, "initial-profile", cfg.InitialProfile, "profile to activate at startup (power-saver, balanced, performance)")
	flags.BoolVar(&cfg.UseSessionBus, "session-bus", cfg.UseSessionBus, "watch the desktop session bus for profile changes instead of a file")
	flags.StringVar(&cfg.BusFilePath, "bus-file", cfg.BusFilePath, "profile-request file to watch when --session-bus=false")
	flags.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "log every actuator write instead of making it")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logging level (debug, info, warn, error)")
	flags.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit structured JSON logs instead of the console format")

	cmd.AddCommand(tablesCmd(cfg))
	return cmd
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// tablesCmd prints the persisted (or default) thermal table for every
// profile, without starting the daemon, for inspecting what the auto-tuner
// has learned.
func tablesCmd(cfg *options.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print the persisted thermal tables for every profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := governor.NewStore(cfg.StatePath)
			tables := store.Load()

			out := make(map[string]governor.ThermalTable, len(tables))
			for _, p := range governor.AllProfiles() {
				out[string(p)] = tables[p]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
