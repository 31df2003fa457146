package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facereel/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [video-or-id]",
	Short: "List indexed segments, optionally for one video",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if DB == nil {
			utils.Die("Segment index unavailable", errors.New("no database configured (use --db or FACEREEL_DB_URL)"), nil)
		}
		videoID := ""
		if len(args) == 1 {
			videoID = resolveVideoID(args[0])
		}
		runList(cmd.Context(), videoID)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// resolveVideoID accepts either a path to a video on disk or a raw video ID.
func resolveVideoID(arg string) string {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		if id, err := utils.GenerateVideoID(arg); err == nil {
			return id
		}
	}
	return arg
}

func runList(ctx context.Context, videoID string) {
	rows, err := DB.ListSegments(ctx, videoID)
	if err != nil {
		utils.Die("Failed to list segments", err, nil)
	}

	if len(rows) == 0 {
		fmt.Println("No segments found in database.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VIDEO\t#\tSTART\tEND\tFRAMES\tCLIP\tINDEXED")
	fmt.Fprintln(w, "-----\t-\t-----\t---\t------\t----\t-------")

	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			r.VideoPath, r.Ordinal,
			utils.FormatTimestamp(r.StartTime), utils.FormatTimestamp(r.EndTime),
			r.Frames, r.OutputPath, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
