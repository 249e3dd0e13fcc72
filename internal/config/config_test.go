package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keagan/clipbot/internal/media"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Scoring.MaxClipDuration != 12*time.Second {
		t.Errorf("max clip = %s, want 12s", cfg.Scoring.MaxClipDuration)
	}
	if cfg.Audio.MusicVolume != 0.2 {
		t.Errorf("music volume = %g, want 0.2", cfg.Audio.MusicVolume)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clipbot.yaml")
	data := []byte(`
concurrency: 3
scoring:
  max_clip_duration: 20s
  gap_min: 1500ms
audio:
  ducking_enabled: false
  target_lufs: -16
output:
  resolution: 1080p
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.Scoring.MaxClipDuration != 20*time.Second {
		t.Errorf("max clip = %s", cfg.Scoring.MaxClipDuration)
	}
	if cfg.Scoring.GapMin != 1500*time.Millisecond {
		t.Errorf("gap min = %s", cfg.Scoring.GapMin)
	}
	if cfg.Audio.DuckingEnabled {
		t.Error("ducking should be disabled")
	}
	if cfg.Output.Resolution != "1080p" {
		t.Errorf("resolution = %s", cfg.Output.Resolution)
	}
	// untouched keys keep defaults
	if cfg.Scoring.Weights.Motion != 0.35 {
		t.Errorf("motion weight = %g", cfg.Scoring.Weights.Motion)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clipbot.toml")
	data := []byte(`
concurrency = 2

[audio]
eq_profile = "warm"
music_volume = 0.35

[selection]
clips_per_hour_min = 10.0
clips_per_hour_max = 20.0
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.EQProfile != "warm" || cfg.Audio.MusicVolume != 0.35 {
		t.Errorf("audio section not decoded: %+v", cfg.Audio)
	}
	if cfg.Selection.ClipsPerHourMax != 20 {
		t.Errorf("clips per hour max = %g", cfg.Selection.ClipsPerHourMax)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.Resolution != "720p" {
		t.Errorf("resolution = %s", cfg.Output.Resolution)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLIPBOT_CONCURRENCY", "7")
	t.Setenv("CLIPBOT_LOG_LEVEL", "DEBUG")
	t.Setenv("CLIPBOT_TARGET_LUFS", "-18.5")
	t.Setenv("CLIPBOT_CACHE", "no")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Concurrency != 7 {
		t.Errorf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
	if cfg.Audio.TargetLUFS != -18.5 {
		t.Errorf("target lufs = %g", cfg.Audio.TargetLUFS)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"zero max clip", func(c *Config) { c.Scoring.MaxClipDuration = 0 }, "scoring.max_clip_duration"},
		{"negative fade", func(c *Config) { c.Output.FadeDuration = -time.Second }, "output.fade_duration"},
		{"loud volume", func(c *Config) { c.Audio.MusicVolume = 1.5 }, "audio.music_volume"},
		{"positive lufs", func(c *Config) { c.Audio.TargetLUFS = 3 }, "audio.target_lufs"},
		{"zero lufs", func(c *Config) { c.Audio.TargetLUFS = 0 }, "audio.target_lufs"},
		{"unknown resolution", func(c *Config) { c.Output.Resolution = "8k" }, "output.resolution"},
		{"unknown eq", func(c *Config) { c.Audio.EQProfile = "dubstep" }, "audio.eq_profile"},
		{"unknown transition", func(c *Config) { c.Output.Transition = "wipe" }, "output.transition"},
		{"all weights zero", func(c *Config) { c.Scoring.Weights = Weights{} }, "scoring.weights"},
		{"scene longer than clip", func(c *Config) { c.Scoring.MinSceneLength = time.Minute }, "scoring.min_scene_length"},
		{"missing music", func(c *Config) { c.Audio.MusicTrackPath = "/does/not/exist.mp3" }, "audio.music_track_path"},
		{"bad cut policy", func(c *Config) { c.Scoring.CutPolicy = "random" }, "scoring.cut_policy"},
		{"inverted rate", func(c *Config) { c.Selection.ClipsPerHourMin = 50 }, "selection.clips_per_hour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ce *media.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %s, want %s", ce.Field, tt.field)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clipbot.yaml")
	cfg := defaultConfig()
	cfg.Audio.EQProfile = "bright"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Audio.EQProfile != "bright" || loaded.Output.FadeDuration != cfg.Output.FadeDuration {
		t.Errorf("round trip mismatch: %+v", loaded.Audio)
	}
}

func TestContext(t *testing.T) {
	cfg := defaultConfig()
	cfg.Concurrency = 9
	ctx := WithConfig(context.Background(), cfg)
	if FromContext(ctx).Concurrency != 9 {
		t.Error("config not carried by context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected defaults without config in context")
	}
}
