package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/logging"
	"github.com/andresmejia3/facereel/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Options holds the per-invocation flags shared by detect, extract and run.
type Options struct {
	InputPath     string
	TrackPath     string
	ReferencePath string
	OutputDir     string
	AnnotatePath  string

	Detector  string
	Decoder   string
	Threshold float64
	Policy    string
	Window    int
	Smoothing string
	Audio     bool
	Debug     bool
}

var (
	// Cfg is the resolved configuration for the running command
	Cfg *config.Config
	// DB is the optional segment index, nil when no database is configured
	DB *store.Store

	cfgFile string
	dbURL   string
	verbose bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facereel",
	Short:   "Extract the video segments where one person's face appears",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbURL != "" {
			cfg.DatabaseURL = dbURL
		}
		Cfg = cfg

		// The index is optional; commands that need it check DB themselves
		if cfg.DatabaseURL == "" {
			log.Debug().Msg("No database configured, segment indexing disabled")
			return nil
		}
		DB, err = store.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
	SilenceUsage: true,
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./facereel.yaml, then ~/.facereel/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the segment index (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// applyFlags copies every flag the user set explicitly onto cfg, so flags win
// over the config file and the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts Options) {
	changed := cmd.Flags().Changed
	if changed("output") && opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if changed("detector") {
		cfg.Detector.Kind = opts.Detector
	}
	if changed("decoder") {
		cfg.Detector.Decoder = opts.Decoder
	}
	if changed("threshold") {
		cfg.Matcher.Threshold = opts.Threshold
	}
	if changed("policy") {
		cfg.Matcher.Policy = opts.Policy
	}
	if changed("window") {
		cfg.Matcher.SmoothingWindow = opts.Window
	}
	if changed("smoothing") {
		cfg.Matcher.SmoothingMode = opts.Smoothing
	}
	if changed("audio") {
		cfg.Render.Audio = opts.Audio
	}
	if changed("debug") {
		cfg.Matcher.Debug = opts.Debug
	}
}

// validateInput checks that path names a readable regular file.
func validateInput(path, what string) error {
	if path == "" {
		return fmt.Errorf("%s path is required", what)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s file does not exist: %w", what, err)
		}
		return fmt.Errorf("unable to access %s file: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s path %s is a directory, expected a file", what, path)
	}
	return nil
}
