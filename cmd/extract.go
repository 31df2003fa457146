package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/encoder"
	"github.com/andresmejia3/facereel/internal/logging"
	"github.com/andresmejia3/facereel/internal/render"
	"github.com/andresmejia3/facereel/internal/segment"
	"github.com/andresmejia3/facereel/internal/store"
	"github.com/andresmejia3/facereel/internal/track"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/utils"
	"github.com/spf13/cobra"
)

var extractOpts Options

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Match a track against a reference face and render one clip per segment",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyFlags(cmd, Cfg, extractOpts)
		extractOpts.OutputDir = Cfg.OutputDir
		records, err := loadTrack(extractOpts.TrackPath)
		if err != nil {
			return err
		}
		_, err = runExtract(cmd.Context(), Cfg, extractOpts, records)
		return err
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOpts.InputPath, "input", "i", "", "Path to video")
	extractCmd.Flags().StringVar(&extractOpts.TrackPath, "track", "", "Track file written by detect")
	extractCmd.MarkFlagRequired("input")
	extractCmd.MarkFlagRequired("track")
	addExtractFlags(extractCmd, &extractOpts)
	rootCmd.AddCommand(extractCmd)
}

func addExtractFlags(c *cobra.Command, opts *Options) {
	def := config.Default()
	c.Flags().StringVarP(&opts.ReferencePath, "reference", "r", "", "Image of the person to extract")
	c.Flags().StringVarP(&opts.OutputDir, "output", "o", def.OutputDir, "Directory for clips and metadata.json")
	c.Flags().Float64VarP(&opts.Threshold, "threshold", "t", def.Matcher.Threshold, "Match threshold (embedding distance, lower is stricter)")
	c.Flags().StringVar(&opts.Policy, "policy", def.Matcher.Policy, "Per-frame face choice: first (first face under threshold) or best (closest)")
	c.Flags().IntVar(&opts.Window, "window", def.Matcher.SmoothingWindow, "Box smoothing window in frames (<=1 disables)")
	c.Flags().StringVar(&opts.Smoothing, "smoothing", def.Matcher.SmoothingMode, "Smoothing edge handling: renormalize or zero-pad")
	c.Flags().BoolVar(&opts.Audio, "audio", def.Render.Audio, "Mux the source audio slice onto each clip")
	c.Flags().BoolVarP(&opts.Debug, "debug", "d", false, "Save every face crop to <output>/debug")
	c.MarkFlagRequired("reference")
}

// validateExtractFlags ensures all CLI arguments are valid before starting heavy processes.
func validateExtractFlags(cfg *config.Config, opts *Options) error {
	if err := validateInput(opts.InputPath, "input"); err != nil {
		utils.ShowError("Invalid input video", err, nil)
		return err
	}
	if err := validateInput(opts.ReferencePath, "reference"); err != nil {
		utils.ShowError("Invalid reference image", err, nil)
		return err
	}
	if opts.OutputDir == "" {
		err := errors.New("output directory is required")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if err := cfg.Validate(); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	return nil
}

func loadTrack(path string) ([]types.FrameDetectionRecord, error) {
	records, err := track.Load(path)
	if err != nil {
		utils.ShowError("Failed to read track", err, nil)
		return nil, err
	}
	return records, nil
}

// runExtract matches the track, renders every segment and writes metadata.
// A segment that fails to render is reported and skipped; the rest still run.
func runExtract(ctx context.Context, cfg *config.Config, opts Options, records []types.FrameDetectionRecord) (*types.RunMetadata, error) {
	if err := validateExtractFlags(cfg, &opts); err != nil {
		return nil, err
	}
	logger := logging.WithComponent("extract")

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		utils.ShowError("Failed to create output directory", err, nil)
		return nil, err
	}

	enc, err := encoder.NewDlib(cfg.Encoder)
	if err != nil {
		utils.ShowError("Failed to load face recognition models", err, nil)
		return nil, err
	}
	defer enc.Close()

	reference, err := encoder.LoadReference(enc, opts.ReferencePath)
	if err != nil {
		utils.ShowError("Failed to encode reference image", err, nil)
		return nil, err
	}

	src, err := openSeeker(ctx, cfg, opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to open video", err, nil)
		return nil, err
	}
	defer src.Close()
	info := src.Info()

	segOpts := segment.OptionsFromConfig(cfg.Matcher, opts.OutputDir)
	segments, err := segment.MatchAndSegment(ctx, logging.WithComponent("segment"), records, src, enc, reference, segOpts)
	if err != nil {
		utils.ShowError("Matching failed", err, nil)
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "\n🎯 Found %d segment(s)\n", len(segments))

	meta := &types.RunMetadata{
		FileName: filepath.Base(opts.InputPath),
		Segments: segment.Metadata(segments, info.FPS),
	}

	renderer := render.New(logging.WithComponent("render"), cfg, info)
	rendered := make(map[int]*render.Result, len(segments))
	for i, seg := range segments {
		ordinal := i + 1
		res, err := renderer.Render(ctx, src, seg, ordinal)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error().Err(err).Int("segment", ordinal).Msg("Segment render failed")
			fmt.Fprintf(os.Stderr, "⚠️  Segment %d failed: %v\n", ordinal, err)
			continue
		}
		rendered[ordinal] = res
		start, end := seg.Span(info.FPS)
		fmt.Fprintf(os.Stderr, "🎬 %s [%s - %s] %d frames", res.Path, utils.FormatTimestamp(start), utils.FormatTimestamp(end), res.Frames)
		if res.Dropped > 0 {
			fmt.Fprintf(os.Stderr, " (%d dropped)", res.Dropped)
		}
		fmt.Fprintln(os.Stderr)
	}

	metaPath := filepath.Join(opts.OutputDir, render.MetadataFile)
	if err := render.WriteMetadata(metaPath, *meta); err != nil {
		utils.ShowError("Failed to write metadata", err, nil)
		return nil, err
	}

	if DB != nil {
		if err := indexRun(ctx, DB, opts, segments, rendered, info.FPS); err != nil {
			// The clips and metadata are already on disk
			logger.Error().Err(err).Msg("Failed to index segments")
		}
	}

	fmt.Fprintf(os.Stderr, "\n✅ Wrote %d of %d clip(s) to %s\n", len(rendered), len(segments), opts.OutputDir)
	fmt.Fprintf(os.Stderr, "📝 Metadata: %s\n", metaPath)
	return meta, nil
}

// indexRun records the rendered segments of this run in the database,
// replacing rows from any earlier run over the same file.
func indexRun(ctx context.Context, db *store.Store, opts Options, segments []types.Segment, rendered map[int]*render.Result, fps float64) error {
	videoID, err := utils.GenerateVideoID(opts.InputPath)
	if err != nil {
		return fmt.Errorf("failed to generate video ID: %w", err)
	}
	if err := db.EnsureVideo(ctx, videoID, opts.InputPath); err != nil {
		return fmt.Errorf("failed to register video: %w", err)
	}

	for i, seg := range segments {
		res, ok := rendered[i+1]
		if !ok {
			continue
		}
		start, end := seg.Span(fps)
		_, err := db.InsertSegment(ctx, store.SegmentRow{
			VideoID:    videoID,
			Ordinal:    i + 1,
			StartTime:  start,
			EndTime:    end,
			FirstFrame: seg.First(),
			LastFrame:  seg.Last(),
			Frames:     res.Frames,
			OutputPath: res.Path,
			Reference:  opts.ReferencePath,
		})
		if err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", i+1, err)
		}
	}
	fmt.Fprintf(os.Stderr, "🗂️  Indexed %d segment(s) under video ID %s\n", len(rendered), videoID[:12])
	return nil
}
