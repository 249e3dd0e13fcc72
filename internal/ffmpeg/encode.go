package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/render"
	"github.com/keagan/clipbot/pkg/util"
)

// EncoderConfig holds codec settings shared by every job.
type EncoderConfig struct {
	VideoCodec string
	AudioCodec string
	Preset     string
	CRF        int
}

func (c EncoderConfig) withDefaults() EncoderConfig {
	if c.VideoCodec == "" {
		c.VideoCodec = DefaultVideoCodec
	}
	if c.AudioCodec == "" {
		c.AudioCodec = DefaultAudioCodec
	}
	if c.Preset == "" {
		c.Preset = DefaultPreset
	}
	if c.CRF == 0 {
		c.CRF = DefaultCRF
	}
	return c
}

// Encoder renders assembled jobs into finished clips.
type Encoder struct {
	exec   *Executor
	cfg    EncoderConfig
	logger zerolog.Logger
}

// NewEncoder creates an encoder backed by exec
func NewEncoder(exec *Executor, cfg EncoderConfig) *Encoder {
	return &Encoder{
		exec:   exec,
		cfg:    cfg.withDefaults(),
		logger: exec.logger.With().Str("stage", "encode").Logger(),
	}
}

// Encode writes job.OutputPath. The file only appears once ffmpeg has
// finished successfully; any failure is an *media.EncodeError.
func (enc *Encoder) Encode(ctx context.Context, job render.Job) error {
	if job.Trim.Duration <= 0 {
		return &media.EncodeError{Output: job.OutputPath, Err: fmt.Errorf("empty trim")}
	}
	if err := util.EnsureDir(filepath.Dir(job.OutputPath)); err != nil {
		return &media.EncodeError{Output: job.OutputPath, Err: err}
	}

	part := util.PartPath(job.OutputPath)
	enc.logger.Info().
		Str("job", job.ID).
		Str("output", job.OutputPath).
		Dur("start", job.Trim.Start).
		Dur("duration", job.Trim.Duration).
		Bool("music", job.HasMusic()).
		Msg("encoding clip")

	runOpts := RunOptions{
		Args:            BuildEncodeArgs(job, enc.cfg, part),
		ProgressHandler: logProgress(enc.logger.With().Str("job", job.ID).Logger(), "encode progress", job.Trim.Duration),
		LogHandler: func(line string) {
			enc.logger.Trace().Str("ffmpeg", line).Msg("encode output")
		},
	}
	if err := enc.exec.Run(ctx, runOpts); err != nil {
		_ = os.Remove(part)
		return &media.EncodeError{Output: job.OutputPath, Err: err}
	}
	if err := util.Promote(part, job.OutputPath); err != nil {
		return &media.EncodeError{Output: job.OutputPath, Err: err}
	}

	enc.logger.Info().Str("output", job.OutputPath).Msg("clip encoded")
	return nil
}

// logProgress reports ffmpeg progress against total at debug level.
func logProgress(logger zerolog.Logger, msg string, total time.Duration) ProgressFunc {
	return func(p *Progress) {
		ev := logger.Debug().Dur("out_time", p.OutTime()).Str("speed", p.Speed)
		if total > 0 {
			ev = ev.Float64("percent", math.Min(100, 100*float64(p.OutTime())/float64(total)))
		}
		ev.Msg(msg)
	}
}

// BuildEncodeArgs returns the ffmpeg arguments that render job into output.
func BuildEncodeArgs(job render.Job, cfg EncoderConfig, output string) []string {
	cfg = cfg.withDefaults()
	length := job.Trim.Duration

	args := []string{
		"-ss", util.FormatDuration(job.Trim.Start),
		"-t", util.FormatDuration(length),
		"-i", job.Asset.Path,
	}
	if job.HasMusic() {
		args = append(args, "-stream_loop", "-1", "-i", job.Mix.Music.Track)
	}

	g := &Graph{}

	video := NewFilterBuilder().Letterbox(job.Width, job.Height)
	if job.Transition.Kind == render.TransitionCrossfade {
		video.Fade(length, job.Transition.Duration)
	}
	g.Chain([]string{"0:v"}, video, "v", "null")

	useSource := job.Asset.HasAudio && !job.Mix.MuteSource
	if useSource {
		src := NewFilterBuilder().
			Loudnorm(job.Mix.TargetLUFS).
			DialogueCompand().
			AudioFade(length, job.Mix.FadeIn, job.Mix.FadeOut)
		g.Chain([]string{"0:a"}, src, "src", "anull")
	}

	if job.HasMusic() {
		m := job.Mix.Music
		music := NewFilterBuilder().
			Custom("atrim=0:"+secs(length)).
			Custom("asetpts=PTS-STARTPTS").
			Loudnorm(job.Mix.TargetLUFS).
			EQ(m.EQ).
			Envelope(job.Envelope)
		g.Chain([]string{"1:a"}, music, "mus", "anull")
	}

	audio := ""
	switch {
	case useSource && job.HasMusic():
		g.Chain([]string{"src", "mus"}, NewFilterBuilder().
			Custom("amix=inputs=2:duration=first:dropout_transition=0:normalize=0"), "a", "")
		audio = "a"
	case useSource:
		audio = "src"
	case job.HasMusic():
		audio = "mus"
	}

	args = append(args, "-filter_complex", g.String(), "-map", "[v]")
	if audio != "" {
		args = append(args,
			"-map", "["+audio+"]",
			"-c:a", cfg.AudioCodec,
			"-b:a", "192k",
			"-ar", "48000",
		)
	} else {
		args = append(args, "-an")
	}

	args = append(args,
		"-c:v", cfg.VideoCodec,
		"-preset", cfg.Preset,
		"-crf", fmt.Sprintf("%d", cfg.CRF),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-t", util.FormatDuration(length),
		output,
	)
	return args
}
