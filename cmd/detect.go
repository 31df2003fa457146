package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/detector"
	"github.com/andresmejia3/facereel/internal/logging"
	"github.com/andresmejia3/facereel/internal/track"
	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/utils"
	"github.com/andresmejia3/facereel/internal/video"
	"github.com/spf13/cobra"
)

var detectOpts Options

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect faces in every frame and write the track file",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyFlags(cmd, Cfg, detectOpts)
		_, err := runDetect(cmd.Context(), Cfg, detectOpts)
		return err
	},
}

func init() {
	detectCmd.Flags().StringVarP(&detectOpts.InputPath, "input", "i", "", "Path to video")
	detectCmd.Flags().StringVarP(&detectOpts.TrackPath, "output", "o", "track.json", "Track file to write (.json, or .msgpack/.mpk for MessagePack)")
	addDetectFlags(detectCmd, &detectOpts)

	detectCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(detectCmd)
}

func addDetectFlags(c *cobra.Command, opts *Options) {
	def := config.Default()
	c.Flags().StringVar(&opts.Detector, "detector", def.Detector.Kind, "Face detector backend: haar, yunet or pigo")
	c.Flags().StringVar(&opts.Decoder, "decoder", def.Detector.Decoder, "Frame decoder for detection: capture (OpenCV) or ffmpeg")
	c.Flags().StringVar(&opts.AnnotatePath, "annotate", "", "Also write a copy of the video with detected boxes drawn")
}

// validateDetectFlags ensures all CLI arguments are valid before starting heavy processes.
func validateDetectFlags(cfg *config.Config, opts *Options) error {
	if err := validateInput(opts.InputPath, "input"); err != nil {
		utils.ShowError("Invalid input video", err, nil)
		return err
	}
	if opts.TrackPath == "" {
		err := errors.New("track output path is required")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if err := cfg.Validate(); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	return nil
}

// probeInfo asks ffprobe for stream info. Without ffprobe the capture
// backend can still report most of it, so failure is only logged.
func probeInfo(ctx context.Context, cfg *config.Config, path string) *video.Info {
	info, err := video.Probe(ctx, cfg.FFmpeg.ProbePath, path)
	if err != nil {
		logging.WithComponent("probe").Warn().Err(err).Msg("ffprobe unavailable, relying on decoder metadata")
		return nil
	}
	return info
}

// openSeeker opens the random-access source used for matching and rendering.
func openSeeker(ctx context.Context, cfg *config.Config, path string) (*video.Capture, error) {
	c, err := video.OpenCapture(path)
	if err != nil {
		return nil, err
	}
	c.Merge(probeInfo(ctx, cfg, path))
	if c.Info().FPS <= 0 {
		c.Close()
		return nil, &types.ResourceUnavailableError{Resource: path, Err: errors.New("frame rate unknown")}
	}
	return c, nil
}

// openSource opens the sequential source for the detection pass.
func openSource(ctx context.Context, cfg *config.Config, path string) (video.Source, error) {
	if cfg.Detector.Decoder == config.DecoderFFmpeg {
		info := probeInfo(ctx, cfg, path)
		if info == nil {
			return nil, &types.ResourceUnavailableError{Resource: path, Err: errors.New("the ffmpeg decoder needs ffprobe metadata")}
		}
		s, err := video.OpenStream(ctx, cfg.FFmpeg.BinaryPath, path, *info, cfg.FFmpeg.Process())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	c, err := openSeeker(ctx, cfg, path)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// runDetect performs the detection pass and persists the track.
func runDetect(ctx context.Context, cfg *config.Config, opts Options) ([]types.FrameDetectionRecord, error) {
	if err := validateDetectFlags(cfg, &opts); err != nil {
		return nil, err
	}
	logger := logging.WithComponent("detect")

	det, err := detector.New(cfg.Detector)
	if err != nil {
		utils.ShowError("Failed to load face detector", err, nil)
		return nil, err
	}
	defer det.Close()

	src, err := openSource(ctx, cfg, opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to open video", err, nil)
		return nil, err
	}
	defer src.Close()

	info := src.Info()
	fmt.Fprintf(os.Stderr, "📼 %s: %dx%d @ %.2f fps, %d frames\n", opts.InputPath, info.Width, info.Height, info.FPS, info.FrameCount)
	fmt.Fprintf(os.Stderr, "🔍 Detector: %s, decoder: %s\n", cfg.Detector.Kind, cfg.Detector.Decoder)

	var builderOpts []track.Option
	if opts.AnnotatePath != "" {
		annotated := video.NewWriter(ctx, cfg.FFmpeg.BinaryPath, opts.AnnotatePath, utils.EncodeOptions{
			ProcessOptions: cfg.FFmpeg.Process(),
			FPS:            info.FPS,
			Width:          info.Width,
			Height:         info.Height,
			Codec:          cfg.Render.VideoCodec,
			CRF:            cfg.Render.CRF,
			Preset:         cfg.Render.Preset,
		})
		defer func() {
			if err := annotated.Close(); err != nil {
				logger.Warn().Err(err).Msg("Annotated copy is incomplete")
			}
		}()
		builderOpts = append(builderOpts, track.WithAnnotation(annotated))
	}

	start := time.Now()
	records, err := track.NewBuilder(logger, builderOpts...).Build(ctx, src, det)
	if err != nil {
		utils.ShowError("Detection pass failed", err, nil)
		return nil, err
	}

	if err := track.Save(opts.TrackPath, records); err != nil {
		utils.ShowError("Failed to write track", err, nil)
		return nil, err
	}

	faces, withFaces := 0, 0
	for _, r := range records {
		faces += len(r.Faces)
		if len(r.Faces) > 0 {
			withFaces++
		}
	}
	fmt.Fprintf(os.Stderr, "\n✅ Detection complete in %s: %d faces across %d of %d frames\n",
		utils.FormatTimestamp(time.Since(start).Seconds()), faces, withFaces, len(records))
	fmt.Fprintf(os.Stderr, "💾 Track written to %s\n", opts.TrackPath)
	return records, nil
}
