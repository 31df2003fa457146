package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var runOpts Options

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Detect, match and render in one pass",
	Long: `Runs detect and then extract over the same video. The track is written to
<output>/track.json unless --track is given, so a later extract with a different
reference or threshold can skip detection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyFlags(cmd, Cfg, runOpts)
		runOpts.OutputDir = Cfg.OutputDir
		if runOpts.TrackPath == "" {
			runOpts.TrackPath = filepath.Join(runOpts.OutputDir, "track.json")
		}
		if err := os.MkdirAll(runOpts.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		// Reference problems should surface before the long detection pass
		if err := validateExtractFlags(Cfg, &runOpts); err != nil {
			return err
		}

		records, err := runDetect(cmd.Context(), Cfg, runOpts)
		if err != nil {
			return err
		}
		_, err = runExtract(cmd.Context(), Cfg, runOpts, records)
		return err
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.InputPath, "input", "i", "", "Path to video")
	runCmd.Flags().StringVar(&runOpts.TrackPath, "track", "", "Where to write the track (default <output>/track.json)")
	addDetectFlags(runCmd, &runOpts)
	addExtractFlags(runCmd, &runOpts)

	runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
