package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/keagan/clipbot/internal/config"
	"github.com/keagan/clipbot/internal/features"
	"github.com/keagan/clipbot/internal/ffmpeg"
	"github.com/keagan/clipbot/internal/logging"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/music"
	"github.com/keagan/clipbot/internal/pipeline"
	"github.com/keagan/clipbot/internal/store"
)

var runFlags struct {
	maxClip      time.Duration
	fade         time.Duration
	music        string
	musicDir     string
	volume       float64
	mute         bool
	resolution   string
	noCache      bool
	nonRecursive bool
	workers      int
	timeout      time.Duration
	noDucking    bool
	eq           string
	lufs         float64
	transition   string
}

var runCmd = &cobra.Command{
	Use:   "run <input_dir> <output_dir>",
	Short: "Process every video under input_dir into clips",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		a, err := newAdapters(cfg, !runFlags.noCache)
		if err != nil {
			return err
		}
		defer a.Close()

		pipe, err := pipeline.New(log.Logger, cfg, a.deps())
		if err != nil {
			return err
		}

		report, err := pipe.Run(cmd.Context(), args[0], args[1])
		if report != nil {
			printSummary(report)
		}
		if cmd.Context().Err() != nil {
			logging.WithComponent("cli").Warn().Msg("batch interrupted")
		}
		return err
	},
}

func init() {
	f := runCmd.Flags()
	f.DurationVar(&runFlags.maxClip, "max-clip", 12*time.Second, "maximum clip duration")
	f.DurationVar(&runFlags.fade, "fade", 500*time.Millisecond, "fade in/out duration")
	f.StringVar(&runFlags.music, "music", "", "background music track")
	f.StringVar(&runFlags.musicDir, "music-dir", "", "pick background music per video from this directory")
	f.Float64Var(&runFlags.volume, "volume", 0.2, "music volume [0,1]")
	f.BoolVar(&runFlags.mute, "mute", false, "drop the original audio")
	f.StringVar(&runFlags.resolution, "resolution", "720p", "output resolution: 480p|720p|1080p|original")
	f.BoolVar(&runFlags.noCache, "no-cache", false, "ignore and do not update the feature cache")
	f.BoolVar(&runFlags.nonRecursive, "non-recursive", false, "only process the top level of input_dir")
	f.IntVar(&runFlags.workers, "workers", 0, "parallel videos (0 = one per CPU)")
	f.DurationVar(&runFlags.timeout, "timeout", 30*time.Minute, "per-video time limit")
	f.BoolVar(&runFlags.noDucking, "no-ducking", false, "keep music at a constant level under speech")
	f.StringVar(&runFlags.eq, "eq", "instrumental", "music EQ profile")
	f.Float64Var(&runFlags.lufs, "lufs", -14, "target integrated loudness")
	f.StringVar(&runFlags.transition, "transition", "crossfade", "clip transition: crossfade|cut")
}

// applyRunFlags overlays explicitly set flags on the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("max-clip") {
		cfg.Scoring.MaxClipDuration = runFlags.maxClip
	}
	if f.Changed("fade") {
		cfg.Output.FadeDuration = runFlags.fade
	}
	if f.Changed("music") {
		cfg.Audio.MusicTrackPath = runFlags.music
	}
	if f.Changed("music-dir") {
		cfg.Music.Dir = runFlags.musicDir
	}
	if f.Changed("volume") {
		cfg.Audio.MusicVolume = runFlags.volume
	}
	if f.Changed("mute") {
		cfg.Audio.MuteOriginal = runFlags.mute
	}
	if f.Changed("resolution") {
		cfg.Output.Resolution = runFlags.resolution
	}
	if runFlags.noCache {
		cfg.Cache.Enabled = false
	}
	if runFlags.nonRecursive {
		cfg.Recursive = false
	}
	if f.Changed("workers") {
		cfg.Concurrency = runFlags.workers
	}
	if f.Changed("timeout") {
		cfg.AssetTimeout = runFlags.timeout
	}
	if runFlags.noDucking {
		cfg.Audio.DuckingEnabled = false
	}
	if f.Changed("eq") {
		cfg.Audio.EQProfile = runFlags.eq
	}
	if f.Changed("lufs") {
		cfg.Audio.TargetLUFS = runFlags.lufs
	}
	if f.Changed("transition") {
		cfg.Output.Transition = runFlags.transition
	}
}

// adapters owns the ffmpeg, cache and music collaborators of a command.
type adapters struct {
	exec    *ffmpeg.Executor
	source  features.Source
	encoder *ffmpeg.Encoder
	library *music.Library
	store   *store.Store
}

func newAdapters(cfg *config.Config, useCache bool) (*adapters, error) {
	logger := log.Logger

	exec, err := ffmpeg.New(logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	fc := cfg.Features
	dec := ffmpeg.NewDecoder(exec, ffmpeg.DecoderConfig{
		SampleFPS: fc.SampleFPS,
		Width:     fc.AnalysisWidth,
		Height:    fc.AnalysisHeight,
		TempDir:   cfg.TempDir,
	})
	extractor := features.NewExtractor(logger, dec,
		features.NewHeuristicAnalyzer(fc.AnalysisWidth, fc.AnalysisHeight),
		features.Config{
			Window:     fc.Window,
			SpeechBand: fc.SpeechBand || cfg.Audio.SpeechGate > 0,
		})

	library, err := music.NewLibrary(cfg.Audio.MusicTrackPath, cfg.Music.Dir)
	if err != nil {
		return nil, err
	}

	a := &adapters{
		exec:   exec,
		source: extractor,
		encoder: ffmpeg.NewEncoder(exec, ffmpeg.EncoderConfig{
			Preset: cfg.FFmpeg.Preset,
			CRF:    cfg.FFmpeg.CRF,
		}),
		library: library,
	}

	if cfg.Cache.Path != "" {
		st, err := store.Open(cfg.Cache.Path)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("store unavailable, continuing without cache or history")
		} else {
			a.store = st
		}
	}
	if a.store != nil && useCache && cfg.Cache.Enabled {
		a.source = store.NewCachedSource(logger, extractor, a.store)
	}

	if tracks := library.Tracks(); len(tracks) > 0 {
		logger.Info().Int("tracks", len(tracks)).Msg("background music enabled")
	}
	return a, nil
}

func (a *adapters) deps() pipeline.Deps {
	return pipeline.Deps{
		Source:  a.source,
		Encoder: a.encoder,
		Prober:  a.exec,
		Music:   a.library,
		Store:   a.store,
	}
}

func (a *adapters) Close() error {
	return a.store.Close()
}

func printSummary(r *pipeline.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCLIPS\tFILE\tREASON")
	for _, o := range r.Outcomes {
		reason := o.Reason
		if reason == "" {
			reason = o.Note
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", o.Status, o.Clips, o.Path, reason)
	}
	w.Flush()

	s := r.Summary
	fmt.Printf("\nrun %s: %d videos, %d completed, %d skipped, %d failed, %d clips\n",
		r.RunID, s.Assets, s.Completed, s.Skipped, s.Failed, s.Clips)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Plan clips for one video without encoding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		a, err := newAdapters(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		path := args[0]
		asset, err := a.exec.ProbeAsset(cmd.Context(), path)
		if err != nil {
			return &media.DecodeError{Path: path, Err: err}
		}
		asset.ID = media.AssetID(path)
		asset.RelDir = "."
		if st, err := os.Stat(path); err == nil {
			asset.ModTime, asset.Size = st.ModTime(), st.Size()
		}

		pipe, err := pipeline.New(log.Logger, cfg, a.deps())
		if err != nil {
			return err
		}

		plan, err := pipe.Analyze(cmd.Context(), asset)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	},
}
