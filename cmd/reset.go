package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facereel/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetIndex bool
	resetFiles bool
	resetDebug bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset state (segment index, rendered clips, debug crops)",
	Long:  "Clears generated data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no flags are set, default to clearing EVERYTHING
		if !resetIndex && !resetFiles && !resetDebug {
			resetIndex = true
			resetFiles = true
			resetDebug = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		outputDir := Cfg.OutputDir

		if resetIndex {
			if DB == nil {
				fmt.Println("ℹ️  No database configured, skipping index.")
			} else if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetFiles {
			if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete clips and metadata in %s?", outputDir)) {
				fmt.Println("🗑️  Clearing Output Files (Clips, Metadata, Track)...")
				removeOutputs(outputDir)
			}
		}

		if resetDebug {
			if resetYes || confirm(reader, "⚠️  Are you sure you want to delete all debug crops?") {
				fmt.Println("🗑️  Clearing Debug Crops...")
				removeDir(filepath.Join(outputDir, "debug"))
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetIndex, "index", false, "Drop the PostgreSQL segment index")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete rendered clips, metadata.json and track.json")
	resetCmd.Flags().BoolVar(&resetDebug, "debug", false, "Delete debug face crops")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

// removeOutputs deletes what extract and run write, leaving anything else
// in the directory alone.
func removeOutputs(dir string) {
	clips, _ := filepath.Glob(filepath.Join(dir, "segment_*.mp4"))
	temps, _ := filepath.Glob(filepath.Join(dir, ".segment_*.video.mp4"))
	for _, p := range append(clips, temps...) {
		removeDir(p)
	}
	removeDir(filepath.Join(dir, "metadata.json"))
	removeDir(filepath.Join(dir, "track.json"))
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
