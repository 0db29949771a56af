package cli

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/config"
	"github.com/aidanlsb/moltrack/internal/engine"
	"github.com/aidanlsb/moltrack/internal/ui"
)

var (
	// Global flags
	configPath  string
	dbDSN       string
	dbDriver    string
	verbose     bool
	noColor     bool
	metricsFile string

	// Resolved values
	resolvedConfigPath string
	cfg                *config.Config
	eng                *engine.Engine
	ownsEngine         bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mt",
	Short: "MolTrack - a chemistry-aware compound and assay registry",
	Long: `MolTrack registers compounds, batches and assay results against a
schema you define at runtime: typed properties, synonym types and
record-level validators.

Records are validated against the registered schema, and searches combine
property filters with structure predicates (exact, substructure, similarity)
at any level from compounds down to assay results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsEngine(cmd) {
			return nil
		}

		var err error
		cfg, resolvedConfigPath, err = loadGlobalConfigWithPath()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlagOverrides(cfg)
		if noColor || !ui.NewDisplayContext().ColorEnabled() {
			ui.DisableStyles()
		}

		// Tests install an engine directly.
		if eng != nil {
			return nil
		}
		eng, err = engine.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", cfg.Database.DSN, err)
		}
		ownsEngine = true
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if metricsFile != "" {
			if err := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
		}
		if ownsEngine && eng != nil {
			err := eng.Close()
			eng, ownsEngine = nil, false
			return err
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "Database file (sqlite) or connection URL (postgres); overrides database.dsn")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "Database driver: sqlite or postgres; overrides database.driver")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for agent/script use)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled output")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Enable metrics and write them to this file in Prometheus text format on exit")
}

// skipsEngine reports whether cmd runs without a database.
func skipsEngine(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "init", "completion", "help", "version", "config", cobra.ShellCompRequestCmd:
			return true
		}
	}
	return false
}

func applyFlagOverrides(c *config.Config) {
	if dbDSN != "" {
		c.Database.DSN = dbDSN
	}
	if dbDriver != "" {
		c.Database.Driver = dbDriver
	}
	if verbose {
		c.Log.Level = "debug"
	}
	if metricsFile != "" {
		c.Metrics.Enabled = true
	}
}

// getEngine returns the engine opened for the current command.
func getEngine() *engine.Engine {
	return eng
}

func loadGlobalConfigWithPath() (*config.Config, string, error) {
	if strings.TrimSpace(configPath) != "" {
		loaded, err := config.LoadFrom(configPath)
		return loaded, configPath, err
	}
	loaded, err := config.Load()
	return loaded, config.DefaultPath(), err
}
