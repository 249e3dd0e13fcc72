package config

import (
	"fmt"
	"os"

	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
	"github.com/keagan/clipbot/internal/render"
	"github.com/keagan/clipbot/internal/scene"
)

func invalid(field, format string, args ...any) error {
	return &media.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks every recognised option once, before any asset is touched.
// The first problem is returned as a *media.ConfigurationError.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return invalid("concurrency", "must be >= 0, got %d", c.Concurrency)
	}
	if c.AssetTimeout < 0 {
		return invalid("asset_timeout", "must be >= 0, got %s", c.AssetTimeout)
	}

	if c.Features.Window < 0 {
		return invalid("features.window", "must be >= 0, got %s", c.Features.Window)
	}
	if c.Features.SampleFPS <= 0 {
		return invalid("features.sample_fps", "must be > 0, got %g", c.Features.SampleFPS)
	}
	if c.Features.AnalysisWidth <= 0 || c.Features.AnalysisHeight <= 0 {
		return invalid("features.analysis_width", "analysis size must be positive")
	}

	s := c.Scoring
	if s.MaxClipDuration <= 0 {
		return invalid("scoring.max_clip_duration", "must be > 0, got %s", s.MaxClipDuration)
	}
	w := s.Weights
	if w.Motion < 0 || w.Face < 0 || w.Audio < 0 || w.Luminance < 0 {
		return invalid("scoring.weights", "weights must be non-negative")
	}
	if w.Motion+w.Face+w.Audio+w.Luminance == 0 {
		return invalid("scoring.weights", "at least one weight must be positive")
	}
	if s.LuminanceFloor < 0 || s.LuminanceFloor > 1 {
		return invalid("scoring.luminance_floor", "must be within [0,1], got %g", s.LuminanceFloor)
	}
	if s.DarkPenalty < 0 || s.DarkPenalty > 1 {
		return invalid("scoring.dark_penalty", "must be within [0,1], got %g", s.DarkPenalty)
	}
	if s.FlatVariation < 0 || s.FlatVariation >= 1 {
		return invalid("scoring.flat_variation", "must be within [0,1), got %g", s.FlatVariation)
	}
	if s.GapMin <= 0 {
		return invalid("scoring.gap_min", "must be > 0, got %s", s.GapMin)
	}
	if s.MinSceneLength < 0 || s.MinSceneLength > s.MaxClipDuration {
		return invalid("scoring.min_scene_length", "must be within [0, max_clip_duration], got %s", s.MinSceneLength)
	}
	if _, err := scene.ParseCutPolicy(s.CutPolicy); err != nil {
		return invalid("scoring.cut_policy", "%v", err)
	}
	if s.CutSearch < 0 || s.CutSearch >= s.MaxClipDuration/2 {
		return invalid("scoring.cut_search", "must be within [0, max_clip_duration/2), got %s", s.CutSearch)
	}

	sel := c.Selection
	if sel.ClipsPerHourMin <= 0 || sel.ClipsPerHourMax < sel.ClipsPerHourMin {
		return invalid("selection.clips_per_hour", "need 0 < min <= max, got %g..%g", sel.ClipsPerHourMin, sel.ClipsPerHourMax)
	}
	if sel.MinGap < 0 {
		return invalid("selection.min_gap", "must be >= 0, got %s", sel.MinGap)
	}
	if sel.ScoreTolerance < 0 || sel.ScoreTolerance >= 1 {
		return invalid("selection.score_tolerance", "must be within [0,1), got %g", sel.ScoreTolerance)
	}

	a := c.Audio
	if a.MusicVolume < 0 || a.MusicVolume > 1 {
		return invalid("audio.music_volume", "must be within [0,1], got %g", a.MusicVolume)
	}
	if a.TargetLUFS >= 0 {
		return invalid("audio.target_lufs", "must be negative, got %g", a.TargetLUFS)
	}
	if a.DuckDepthDB > 0 {
		return invalid("audio.duck_depth_db", "must be <= 0, got %g", a.DuckDepthDB)
	}
	if a.Attack < 0 || a.Release < 0 {
		return invalid("audio.attack", "attack and release must be >= 0")
	}
	if a.SpeechGate < 0 || a.SpeechGate > 1 {
		return invalid("audio.speech_gate", "must be within [0,1], got %g", a.SpeechGate)
	}
	if a.EQProfile != "" {
		if _, ok := mix.DefaultProfiles().Lookup(a.EQProfile); !ok {
			return invalid("audio.eq_profile", "unknown profile %q", a.EQProfile)
		}
	}
	if a.MusicTrackPath != "" {
		st, err := os.Stat(a.MusicTrackPath)
		if err != nil {
			return invalid("audio.music_track_path", "%v", err)
		}
		if st.IsDir() {
			return invalid("audio.music_track_path", "%s is a directory", a.MusicTrackPath)
		}
		if !media.HasExtension(a.MusicTrackPath, media.AudioExtensions) {
			return invalid("audio.music_track_path", "unsupported audio format %s", a.MusicTrackPath)
		}
	}

	o := c.Output
	if o.FadeDuration < 0 {
		return invalid("output.fade_duration", "must be >= 0, got %s", o.FadeDuration)
	}
	if _, err := media.ParseResolution(o.Resolution); err != nil {
		return invalid("output.resolution", "%v", err)
	}
	if _, err := render.ParseTransition(o.Transition); err != nil {
		return invalid("output.transition", "%v", err)
	}

	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return invalid("ffmpeg.crf", "must be within [0,51], got %d", c.FFmpeg.CRF)
	}
	if c.Music.RequestsPerSecond < 0 {
		return invalid("music.requests_per_second", "must be >= 0")
	}

	return nil
}
