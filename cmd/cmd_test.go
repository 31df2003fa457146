package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/facereel/internal/config"
	"github.com/andresmejia3/facereel/internal/utils"
	"github.com/spf13/cobra"
)

// silenceStderr swallows the boxed error output for the duration of a sub-test.
func silenceStderr(t *testing.T) {
	t.Helper()
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stderr = w
	t.Cleanup(func() {
		w.Close()
		os.Stderr = oldStderr
		r.Close()
	})
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestValidateInput(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "clip.mp4")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"Regular file", file, false},
		{"Empty path", "", true},
		{"Missing file", filepath.Join(dir, "nope.mp4"), true},
		{"Directory", dir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateInput(tt.path, "input"); (err != nil) != tt.wantErr {
				t.Errorf("validateInput() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDetectFlags(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, dir, "video.mp4")

	badDetector := config.Default()
	badDetector.Detector.Kind = "mtcnn"

	tests := []struct {
		name    string
		cfg     *config.Config
		opts    Options
		wantErr bool
	}{
		{"Valid options", config.Default(), Options{InputPath: video, TrackPath: "track.json"}, false},
		{"Input file does not exist", config.Default(), Options{InputPath: "nonexistent.mp4", TrackPath: "track.json"}, true},
		{"Input is directory", config.Default(), Options{InputPath: dir, TrackPath: "track.json"}, true},
		{"Missing track path", config.Default(), Options{InputPath: video}, true},
		{"Unknown detector", badDetector, Options{InputPath: video, TrackPath: "track.json"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			silenceStderr(t)
			if err := validateDetectFlags(tt.cfg, &tt.opts); (err != nil) != tt.wantErr {
				t.Errorf("validateDetectFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateExtractFlags(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, dir, "video.mp4")
	ref := writeFile(t, dir, "ref.jpg")

	badThreshold := config.Default()
	badThreshold.Matcher.Threshold = 0
	badPolicy := config.Default()
	badPolicy.Matcher.Policy = "random"

	tests := []struct {
		name    string
		cfg     *config.Config
		opts    Options
		wantErr bool
	}{
		{"Valid options", config.Default(), Options{InputPath: video, ReferencePath: ref, OutputDir: dir}, false},
		{"Missing reference", config.Default(), Options{InputPath: video, OutputDir: dir}, true},
		{"Reference does not exist", config.Default(), Options{InputPath: video, ReferencePath: filepath.Join(dir, "who.jpg"), OutputDir: dir}, true},
		{"Missing output dir", config.Default(), Options{InputPath: video, ReferencePath: ref}, true},
		{"Non-positive threshold", badThreshold, Options{InputPath: video, ReferencePath: ref, OutputDir: dir}, true},
		{"Unknown policy", badPolicy, Options{InputPath: video, ReferencePath: ref, OutputDir: dir}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			silenceStderr(t)
			if err := validateExtractFlags(tt.cfg, &tt.opts); (err != nil) != tt.wantErr {
				t.Errorf("validateExtractFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	var opts Options
	c := &cobra.Command{Use: "test"}
	addDetectFlags(c, &opts)
	addExtractFlags(c, &opts)

	if err := c.ParseFlags([]string{"--threshold", "0.45", "--policy", "best", "--detector", "pigo", "-o", "clips"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	cfg := config.Default()
	cfg.Matcher.SmoothingWindow = 9 // as if set by a config file
	applyFlags(c, cfg, opts)

	if cfg.Matcher.Threshold != 0.45 {
		t.Errorf("threshold = %v, want 0.45", cfg.Matcher.Threshold)
	}
	if cfg.Matcher.Policy != config.PolicyBest {
		t.Errorf("policy = %q, want best", cfg.Matcher.Policy)
	}
	if cfg.Detector.Kind != config.DetectorPigo {
		t.Errorf("detector = %q, want pigo", cfg.Detector.Kind)
	}
	if cfg.OutputDir != "clips" {
		t.Errorf("output = %q, want clips", cfg.OutputDir)
	}
	if cfg.Matcher.SmoothingWindow != 9 {
		t.Errorf("unset --window overrode config value: got %d", cfg.Matcher.SmoothingWindow)
	}
}

func TestResolveVideoID(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, dir, "video.mp4")

	want, err := utils.GenerateVideoID(video)
	if err != nil {
		t.Fatal(err)
	}
	if got := resolveVideoID(video); got != want {
		t.Errorf("resolveVideoID(path) = %q, want %q", got, want)
	}
	if got := resolveVideoID("abc123"); got != "abc123" {
		t.Errorf("resolveVideoID(id) = %q, want passthrough", got)
	}
}

func TestRemoveOutputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"segment_1.mp4", "segment_12.mp4", ".segment_2.video.mp4", "metadata.json", "track.json"} {
		writeFile(t, dir, name)
	}
	keep := writeFile(t, dir, "holiday.mp4")

	removeOutputs(dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(keep) {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only holiday.mp4 to remain, got %v", names)
	}
}

func TestWriteConfig(t *testing.T) {
	t.Setenv("FACEREEL_DB_URL", "")
	t.Setenv("POSTGRES_HOST", "")

	saved := Cfg
	defer func() { Cfg = saved }()
	Cfg = config.Default()
	Cfg.FFmpeg.Threads = 2
	Cfg.DatabaseURL = "postgres://user:secret@db:5432/faces"

	path := filepath.Join(t.TempDir(), "facereel.yaml")
	if err := writeConfig(path, false); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.FFmpeg.Threads != 2 {
		t.Errorf("threads = %d, want 2", loaded.FFmpeg.Threads)
	}
	if loaded.DatabaseURL != "" {
		t.Errorf("connection string leaked into config file: %q", loaded.DatabaseURL)
	}
	if Cfg.DatabaseURL == "" {
		t.Error("writeConfig must not modify the live config")
	}

	if err := writeConfig(path, false); err == nil {
		t.Error("Expected refusal to overwrite without force")
	}
	if err := writeConfig(path, true); err != nil {
		t.Errorf("writeConfig with force failed: %v", err)
	}
}
