// dialstudy - rotary dial rating sessions for lie/truth judgment studies.
// Runs a participant through consent, instructions, video trials and
// questionnaires, and exports the recorded decisions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/internal/logging"
	"github.com/dialstudy/dialstudy/pkg/app"
	"github.com/dialstudy/dialstudy/pkg/config"
	"github.com/dialstudy/dialstudy/pkg/lifecycle"
	"github.com/dialstudy/dialstudy/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configFile     string
	experimentFile string
	outputDir      string
	verbose        bool
	logLevel       string

	// Run flags
	seed           int64
	dialDriver     string
	dialDevice     string
	exitAfterFinal bool
	noWatch        bool
	monitorAddr    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dialstudy",
	Short: "dialstudy - rotary dial rating sessions",
	Long: `dialstudy runs single-participant judgment sessions driven by a rotary dial
with a push button, and writes every screen's data to {output}/{participant}/{dataset}.csv.

Configuration is read from /etc/dialstudy/config.yaml, ~/.dialstudy/config.yaml,
./.dialstudy.yaml, the --config file and DIALSTUDY_* variables, in that order.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run experiment sessions",
	Long: `Run experiment sessions at the station.

The operator console draws the active screen. Without dial hardware
(dial.driver: keyboard) the dial is emulated with + - and Enter.

Examples:
  dialstudy run -e experiment.yaml
  dialstudy run --driver serial --device /dev/ttyACM0 --seed 42
  dialstudy run --exit-after-final`,
	RunE: runSession,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (loaded after the standard locations)")
	rootCmd.PersistentFlags().StringVarP(&experimentFile, "experiment", "e", "", "Experiment document (yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Dataset directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to the console as well as the log file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Run command flags
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Trial randomization seed (0 = time based)")
	runCmd.Flags().StringVar(&dialDriver, "driver", "", "Dial driver (keyboard, serial)")
	runCmd.Flags().StringVar(&dialDevice, "device", "", "Serial device of the dial")
	runCmd.Flags().BoolVar(&exitAfterFinal, "exit-after-final", false, "Exit after the debrief instead of starting over")
	runCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the experiment document on change")
	runCmd.Flags().StringVar(&monitorAddr, "monitor", "", "Serve the read-only session monitor on this address (e.g. :8090)")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
}

// loadConfig layers flags that were set explicitly over the config files
// and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	m := config.NewManager()
	if configFile != "" {
		m.SetFile(configFile)
	}
	if err := m.Load(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	m.Update(func(c *config.Config) {
		if experimentFile != "" {
			c.Session.ExperimentFile = experimentFile
		}
		if outputDir != "" {
			c.Output.Dir = outputDir
		}
		if logLevel != "" {
			c.Logging.Level = logLevel
		}
		if flags.Changed("seed") {
			c.Session.Seed = seed
		}
		if dialDriver != "" {
			c.Dial.Driver = dialDriver
		}
		if dialDevice != "" {
			c.Dial.Device = dialDevice
		}
		if flags.Changed("exit-after-final") {
			c.Session.ExitAfterFinal = exitAfterFinal
		}
		if noWatch {
			c.Session.WatchFile = false
		}
		if monitorAddr != "" {
			c.Monitor.Addr = monitorAddr
		}
	})

	cfg := m.Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if verbose {
		for _, p := range m.GetPaths() {
			fmt.Fprintf(os.Stderr, "config: %s\n", p)
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Console:    verbose,
	})
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	// Setup context with signal handling
	ctx, stop := lifecycle.SignalContext(context.Background())
	defer stop()

	tui.PrintHeader(os.Stdout, version)

	a, err := app.New(ctx, app.Options{
		Config:  cfg,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		_ = logger.Sync()
		return err
	}

	runErr := a.Run(ctx)
	if runErr != nil {
		logger.Error("session aborted", zap.Error(runErr))
	}
	if err := a.Shutdown(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if runErr != nil {
		return fmt.Errorf("session aborted: %w", runErr)
	}
	return nil
}
