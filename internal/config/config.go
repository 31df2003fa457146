package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/facereel/internal/types"
	"github.com/andresmejia3/facereel/internal/utils"
	"gopkg.in/yaml.v3"
)

// Detector backends.
const (
	DetectorHaar  = "haar"
	DetectorYuNet = "yunet"
	DetectorPigo  = "pigo"
)

// Match policies.
const (
	PolicyFirst = "first"
	PolicyBest  = "best"
)

// Smoothing boundary modes.
const (
	SmoothRenormalize = "renormalize"
	SmoothZeroPad     = "zero-pad"
)

// Frame decoders for the detection pass.
const (
	DecoderCapture = "capture"
	DecoderFFmpeg  = "ffmpeg"
)

// Config holds all run configuration. It is resolved once and passed into
// each component constructor.
type Config struct {
	OutputDir   string `yaml:"output_dir"`
	DatabaseURL string `yaml:"database_url"`

	Detector DetectorConfig `yaml:"detector"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Render   RenderConfig   `yaml:"render"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
}

type DetectorConfig struct {
	Kind    string `yaml:"kind"`
	Decoder string `yaml:"decoder"`

	// haar
	CascadePath  string  `yaml:"cascade_path"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`

	// yunet
	ModelPath      string  `yaml:"model_path"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	NMSThreshold   float64 `yaml:"nms_threshold"`
	TopK           int     `yaml:"top_k"`

	// pigo
	PigoCascadePath string  `yaml:"pigo_cascade_path"`
	ShiftFactor     float64 `yaml:"shift_factor"`
	IoUThreshold    float64 `yaml:"iou_threshold"`
	MinQuality      float64 `yaml:"min_quality"`
}

type EncoderConfig struct {
	ModelsDir string `yaml:"models_dir"`
}

type MatcherConfig struct {
	Threshold       float64 `yaml:"threshold"`
	Policy          string  `yaml:"policy"`
	SmoothingWindow int     `yaml:"smoothing_window"`
	SmoothingMode   string  `yaml:"smoothing_mode"`
	Debug           bool    `yaml:"debug"`
}

type RenderConfig struct {
	Audio      bool   `yaml:"audio"`
	VideoCodec string `yaml:"video_codec"`
	AudioCodec string `yaml:"audio_codec"`
	CRF        int    `yaml:"crf"`
	Preset     string `yaml:"preset"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
	LogLevel   string `yaml:"log_level"`
}

// Process returns the settings every ffmpeg invocation shares.
func (f FFmpegConfig) Process() utils.ProcessOptions {
	return utils.ProcessOptions{LogLevel: f.LogLevel, Threads: f.Threads}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputDir: "./output",
		Detector: DetectorConfig{
			Kind:            DetectorHaar,
			Decoder:         DecoderCapture,
			CascadePath:     "haarcascade_frontalface_default.xml",
			ScaleFactor:     1.1,
			MinNeighbors:    5,
			MinSize:         30,
			ModelPath:       "face_detection_yunet_2023mar.onnx",
			ScoreThreshold:  0.9,
			NMSThreshold:    0.3,
			TopK:            5000,
			PigoCascadePath: "facefinder",
			ShiftFactor:     0.1,
			IoUThreshold:    0.2,
			MinQuality:      5.0,
		},
		Encoder: EncoderConfig{
			ModelsDir: "./models",
		},
		Matcher: MatcherConfig{
			Threshold:       0.7,
			Policy:          PolicyFirst,
			SmoothingWindow: 5,
			SmoothingMode:   SmoothRenormalize,
		},
		Render: RenderConfig{
			VideoCodec: "libx264",
			AudioCodec: "aac",
			CRF:        23,
			Preset:     "medium",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			LogLevel:   "error",
		},
	}
}

// Load reads configuration from path (or the first candidate file found),
// applies environment overrides and returns it. Missing files yield defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every enumerated and numeric parameter. It must pass before
// any video is opened.
func (c *Config) Validate() error {
	switch c.Detector.Kind {
	case DetectorHaar, DetectorYuNet, DetectorPigo:
	default:
		return &types.ConfigurationError{Field: "detector", Value: c.Detector.Kind, Reason: "must be one of haar, yunet, pigo"}
	}
	switch c.Detector.Decoder {
	case DecoderCapture, DecoderFFmpeg:
	default:
		return &types.ConfigurationError{Field: "decoder", Value: c.Detector.Decoder, Reason: "must be capture or ffmpeg"}
	}
	if c.Detector.Kind == DetectorHaar && c.Detector.ScaleFactor <= 1.0 {
		return &types.ConfigurationError{Field: "scale_factor", Value: c.Detector.ScaleFactor, Reason: "must be greater than 1.0"}
	}
	switch c.Matcher.Policy {
	case PolicyFirst, PolicyBest:
	default:
		return &types.ConfigurationError{Field: "policy", Value: c.Matcher.Policy, Reason: "must be first or best"}
	}
	switch c.Matcher.SmoothingMode {
	case SmoothRenormalize, SmoothZeroPad:
	default:
		return &types.ConfigurationError{Field: "smoothing", Value: c.Matcher.SmoothingMode, Reason: "must be renormalize or zero-pad"}
	}
	if c.Matcher.Threshold <= 0 {
		return &types.ConfigurationError{Field: "threshold", Value: c.Matcher.Threshold, Reason: "must be positive"}
	}
	if c.FFmpeg.Threads < 0 {
		return &types.ConfigurationError{Field: "ffmpeg.threads", Value: c.FFmpeg.Threads, Reason: "must not be negative (0 lets ffmpeg decide)"}
	}
	if c.Matcher.SmoothingWindow < 0 {
		return &types.ConfigurationError{Field: "window", Value: c.Matcher.SmoothingWindow, Reason: "must not be negative"}
	}
	return nil
}

func findConfigFile() string {
	candidates := []string{
		"./facereel.yaml",
		"./facereel.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".facereel", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func applyEnv(cfg *Config) {
	cfg.OutputDir = envStr("FACEREEL_OUTPUT_DIR", cfg.OutputDir)
	cfg.Encoder.ModelsDir = envStr("FACEREEL_MODELS_DIR", cfg.Encoder.ModelsDir)
	cfg.Detector.Kind = envStr("FACEREEL_DETECTOR", cfg.Detector.Kind)
	cfg.Matcher.Threshold = envFloat("FACEREEL_THRESHOLD", cfg.Matcher.Threshold)
	cfg.FFmpeg.BinaryPath = envStr("FACEREEL_FFMPEG", cfg.FFmpeg.BinaryPath)
	cfg.FFmpeg.ProbePath = envStr("FACEREEL_FFPROBE", cfg.FFmpeg.ProbePath)
	cfg.FFmpeg.Threads = envInt("FACEREEL_FFMPEG_THREADS", cfg.FFmpeg.Threads)
	cfg.DatabaseURL = envStr("FACEREEL_DB_URL", cfg.DatabaseURL)

	// Build the connection string from the Postgres environment when nothing else set it
	if cfg.DatabaseURL == "" {
		if host := os.Getenv("POSTGRES_HOST"); host != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
				os.Getenv("POSTGRES_USER"),
				os.Getenv("POSTGRES_PASSWORD"),
				host,
				envStr("POSTGRES_PORT", "5432"),
				os.Getenv("POSTGRES_DB"),
			)
		}
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
