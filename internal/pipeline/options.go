package pipeline

import (
	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/config"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
	"github.com/keagan/clipbot/internal/render"
	"github.com/keagan/clipbot/internal/scene"
)

// SceneConfig maps the scoring section onto the scene package.
func SceneConfig(cfg *config.Config) (scene.Config, error) {
	policy, err := scene.ParseCutPolicy(cfg.Scoring.CutPolicy)
	if err != nil {
		return scene.Config{}, &media.ConfigurationError{Field: "scoring.cut_policy", Reason: err.Error()}
	}

	sc := scene.DefaultConfig()
	w := cfg.Scoring.Weights
	sc.Weights = scene.Weights{Motion: w.Motion, Face: w.Face, Audio: w.Audio, Luminance: w.Luminance}
	sc.LuminanceFloor = cfg.Scoring.LuminanceFloor
	sc.DarkPenalty = cfg.Scoring.DarkPenalty
	sc.ThresholdK = cfg.Scoring.ThresholdK
	sc.MinScore = cfg.Scoring.MinScore
	sc.FlatVariation = cfg.Scoring.FlatVariation
	sc.GapMin = cfg.Scoring.GapMin
	sc.MinSceneLength = cfg.Scoring.MinSceneLength
	sc.MaxClipDuration = cfg.Scoring.MaxClipDuration
	sc.CutPolicy = policy
	sc.CutSearch = cfg.Scoring.CutSearch
	return sc, nil
}

// SelectorConfig maps the selection section.
func SelectorConfig(cfg *config.Config) clips.SelectorConfig {
	return clips.SelectorConfig{
		PerHourMin:     cfg.Selection.ClipsPerHourMin,
		PerHourMax:     cfg.Selection.ClipsPerHourMax,
		MinGap:         cfg.Selection.MinGap,
		ScoreTolerance: cfg.Selection.ScoreTolerance,
	}
}

// MixConfig maps the audio section.
func MixConfig(cfg *config.Config) mix.Config {
	a := cfg.Audio
	return mix.Config{
		TargetLUFS:       a.TargetLUFS,
		FadeDuration:     cfg.Output.FadeDuration,
		MusicVolume:      a.MusicVolume,
		Ducking:          a.DuckingEnabled,
		DuckDepthDB:      a.DuckDepthDB,
		Attack:           a.Attack,
		Release:          a.Release,
		VoiceThresholdDB: a.VoiceThresholdDB,
		SpeechGate:       a.SpeechGate,
		EQProfile:        a.EQProfile,
		MuteSource:       a.MuteOriginal,
	}
}

// RenderConfig maps the output section for jobs written under outDir.
func RenderConfig(cfg *config.Config, outDir string) (render.Config, error) {
	res, err := media.ParseResolution(cfg.Output.Resolution)
	if err != nil {
		return render.Config{}, &media.ConfigurationError{Field: "output.resolution", Reason: err.Error()}
	}
	tr, err := render.ParseTransition(cfg.Output.Transition)
	if err != nil {
		return render.Config{}, &media.ConfigurationError{Field: "output.transition", Reason: err.Error()}
	}
	return render.Config{OutputDir: outDir, Resolution: res, Transition: tr}, nil
}
