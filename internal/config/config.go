package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir      string        `yaml:"work_dir" toml:"work_dir"`
	TempDir      string        `yaml:"temp_dir" toml:"temp_dir"`
	Concurrency  int           `yaml:"concurrency" toml:"concurrency"` // 0 = one worker per CPU
	AssetTimeout time.Duration `yaml:"asset_timeout" toml:"asset_timeout"`
	Recursive    bool          `yaml:"recursive" toml:"recursive"`

	Log       LogConfig       `yaml:"log" toml:"log"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg" toml:"ffmpeg"`
	Features  FeaturesConfig  `yaml:"features" toml:"features"`
	Scoring   ScoringConfig   `yaml:"scoring" toml:"scoring"`
	Selection SelectionConfig `yaml:"selection" toml:"selection"`
	Audio     AudioConfig     `yaml:"audio" toml:"audio"`
	Output    OutputConfig    `yaml:"output" toml:"output"`
	Music     MusicConfig     `yaml:"music" toml:"music"`
}

type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"` // console|json
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" toml:"binary_path"`
	ProbePath  string `yaml:"probe_path" toml:"probe_path"`
	Threads    int    `yaml:"threads" toml:"threads"`
	Preset     string `yaml:"preset" toml:"preset"`
	CRF        int    `yaml:"crf" toml:"crf"`
}

type FeaturesConfig struct {
	Window         time.Duration `yaml:"window" toml:"window"` // 0 = derive from frame rate
	SampleFPS      float64       `yaml:"sample_fps" toml:"sample_fps"`
	AnalysisWidth  int           `yaml:"analysis_width" toml:"analysis_width"`
	AnalysisHeight int           `yaml:"analysis_height" toml:"analysis_height"`
	SpeechBand     bool          `yaml:"speech_band" toml:"speech_band"`
}

type Weights struct {
	Motion    float64 `yaml:"motion" toml:"motion"`
	Face      float64 `yaml:"face" toml:"face"`
	Audio     float64 `yaml:"audio" toml:"audio"`
	Luminance float64 `yaml:"luminance" toml:"luminance"`
}

type ScoringConfig struct {
	Weights         Weights       `yaml:"weights" toml:"weights"`
	LuminanceFloor  float64       `yaml:"luminance_floor" toml:"luminance_floor"`
	DarkPenalty     float64       `yaml:"dark_penalty" toml:"dark_penalty"`
	ThresholdK      float64       `yaml:"threshold_k" toml:"threshold_k"`
	MinScore        float64       `yaml:"min_score" toml:"min_score"`
	FlatVariation   float64       `yaml:"flat_variation" toml:"flat_variation"`
	GapMin          time.Duration `yaml:"gap_min" toml:"gap_min"`
	MinSceneLength  time.Duration `yaml:"min_scene_length" toml:"min_scene_length"`
	MaxClipDuration time.Duration `yaml:"max_clip_duration" toml:"max_clip_duration"`
	CutPolicy       string        `yaml:"cut_policy" toml:"cut_policy"`
	CutSearch       time.Duration `yaml:"cut_search" toml:"cut_search"`
}

type SelectionConfig struct {
	ClipsPerHourMin float64       `yaml:"clips_per_hour_min" toml:"clips_per_hour_min"`
	ClipsPerHourMax float64       `yaml:"clips_per_hour_max" toml:"clips_per_hour_max"`
	MinGap          time.Duration `yaml:"min_gap" toml:"min_gap"`
	ScoreTolerance  float64       `yaml:"score_tolerance" toml:"score_tolerance"`
}

type AudioConfig struct {
	MusicTrackPath   string        `yaml:"music_track_path" toml:"music_track_path"`
	MusicVolume      float64       `yaml:"music_volume" toml:"music_volume"`
	DuckingEnabled   bool          `yaml:"ducking_enabled" toml:"ducking_enabled"`
	DuckDepthDB      float64       `yaml:"duck_depth_db" toml:"duck_depth_db"`
	Attack           time.Duration `yaml:"attack" toml:"attack"`
	Release          time.Duration `yaml:"release" toml:"release"`
	VoiceThresholdDB float64       `yaml:"voice_threshold_db" toml:"voice_threshold_db"`
	SpeechGate       float64       `yaml:"speech_gate" toml:"speech_gate"` // 0 disables
	EQProfile        string        `yaml:"eq_profile" toml:"eq_profile"`
	TargetLUFS       float64       `yaml:"target_lufs" toml:"target_lufs"`
	MuteOriginal     bool          `yaml:"mute_original" toml:"mute_original"`
}

type OutputConfig struct {
	Resolution   string        `yaml:"resolution" toml:"resolution"`
	Transition   string        `yaml:"transition" toml:"transition"`
	FadeDuration time.Duration `yaml:"fade_duration" toml:"fade_duration"`
	SkipExisting bool          `yaml:"skip_existing" toml:"skip_existing"`
	WriteReport  bool          `yaml:"write_report" toml:"write_report"`
}

type MusicConfig struct {
	Dir               string   `yaml:"dir" toml:"dir"`
	URLs              []string `yaml:"urls" toml:"urls"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
}

// DefaultMusicURLs are fetched by `music download` when none are configured.
var DefaultMusicURLs = []string{
	"https://cdn.pixabay.com/audio/2024/ambient/24-125766.mp3",
	"https://cdn.pixabay.com/audio/2024/upbeat/24-127891.mp3",
	"https://cdn.pixabay.com/audio/2024/cinematic/24-129345.mp3",
}

// Load reads configuration from file or returns defaults. Environment
// overrides are applied last. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:      "./work",
		TempDir:      os.TempDir(),
		Concurrency:  0,
		AssetTimeout: 30 * time.Minute,
		Recursive:    true,
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(".clipbot", "clipbot.sqlite3"),
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
			Preset:     "medium",
			CRF:        23,
		},
		Features: FeaturesConfig{
			SampleFPS:      4,
			AnalysisWidth:  160,
			AnalysisHeight: 90,
		},
		Scoring: ScoringConfig{
			Weights: Weights{
				Motion:    0.35,
				Face:      0.30,
				Audio:     0.25,
				Luminance: 0.10,
			},
			LuminanceFloor:  0.15,
			DarkPenalty:     0.5,
			ThresholdK:      0.5,
			MinScore:        0.05,
			FlatVariation:   0.05,
			GapMin:          time.Second,
			MinSceneLength:  time.Second,
			MaxClipDuration: 12 * time.Second,
			CutPolicy:       "local-min",
			CutSearch:       2 * time.Second,
		},
		Selection: SelectionConfig{
			ClipsPerHourMin: 30,
			ClipsPerHourMax: 40,
			MinGap:          2 * time.Second,
			ScoreTolerance:  0.05,
		},
		Audio: AudioConfig{
			MusicVolume:      0.2,
			DuckingEnabled:   true,
			DuckDepthDB:      -12,
			Attack:           150 * time.Millisecond,
			Release:          400 * time.Millisecond,
			VoiceThresholdDB: -30,
			EQProfile:        "instrumental",
			TargetLUFS:       -14,
		},
		Output: OutputConfig{
			Resolution:   "720p",
			Transition:   "crossfade",
			FadeDuration: 500 * time.Millisecond,
			SkipExisting: true,
			WriteReport:  true,
		},
		Music: MusicConfig{
			Dir:               "music",
			URLs:              append([]string(nil), DefaultMusicURLs...),
			RequestsPerSecond: 1,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./clipbot.yaml",
		"./clipbot.yml",
		"./clipbot.toml",
		filepath.Join(os.Getenv("HOME"), ".clipbot", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
