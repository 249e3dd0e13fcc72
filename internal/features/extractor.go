package features

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/clipbot/internal/media"
	"github.com/rs/zerolog"
)

// Config configures feature extraction
type Config struct {
	// Window overrides the frame-rate derived window when positive.
	Window time.Duration
	// SpeechBand computes the speech-band ratio of each window.
	SpeechBand bool
}

// Source produces the feature frames of an asset. Extract returns the
// frames read before a failure together with the error. Fingerprint changes
// whenever a setting that affects the frames changes.
type Source interface {
	Extract(ctx context.Context, asset media.Asset) ([]media.FeatureFrame, error)
	WindowFor(asset media.Asset) time.Duration
	Fingerprint() string
}

// Fingerprinter is implemented by decoders and analyzers whose settings
// shape the frames they produce.
type Fingerprinter interface {
	Fingerprint() string
}

var _ Source = (*Extractor)(nil)

// Extractor turns a decoded asset into feature frames.
type Extractor struct {
	logger   zerolog.Logger
	decoder  Decoder
	analyzer FrameAnalyzer
	cfg      Config
}

// NewExtractor creates an extractor. A nil analyzer selects the heuristic
// analyzer at 160x90.
func NewExtractor(logger zerolog.Logger, dec Decoder, analyzer FrameAnalyzer, cfg Config) *Extractor {
	if analyzer == nil {
		analyzer = NewHeuristicAnalyzer(160, 90)
	}
	return &Extractor{
		logger:   logger.With().Str("component", "extractor").Logger(),
		decoder:  dec,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

// WindowFor returns the window used for asset.
func (e *Extractor) WindowFor(asset media.Asset) time.Duration {
	if e.cfg.Window > 0 {
		return e.cfg.Window
	}
	return WindowFor(asset.FrameRate)
}

// Fingerprint identifies the extraction settings: window override, speech
// band, decoder and analyzer.
func (e *Extractor) Fingerprint() string {
	desc := fmt.Sprintf("window=%s;speech=%t;decoder=%s;analyzer=%s",
		e.cfg.Window, e.cfg.SpeechBand, describe(e.decoder), describe(e.analyzer))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(desc)).String()
}

func describe(v any) string {
	if f, ok := v.(Fingerprinter); ok {
		return f.Fingerprint()
	}
	return fmt.Sprintf("%T", v)
}

// Frames lazily yields one feature frame per window in timestamp order. On a
// read failure it yields a *media.DecodeError and stops; frames already
// yielded stay valid. Context cancellation yields ctx.Err().
func (e *Extractor) Frames(ctx context.Context, asset media.Asset) iter.Seq2[media.FeatureFrame, error] {
	return func(yield func(media.FeatureFrame, error) bool) {
		window := e.WindowFor(asset)
		stream, err := e.decoder.Decode(ctx, asset, window)
		if err != nil {
			yield(media.FeatureFrame{}, &media.DecodeError{Path: asset.Path, Err: err})
			return
		}
		defer stream.Close()

		var prev image.Image
		for idx := 0; ; idx++ {
			if err := ctx.Err(); err != nil {
				yield(media.FeatureFrame{}, err)
				return
			}

			w, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(media.FeatureFrame{}, ctxErr)
					return
				}
				yield(media.FeatureFrame{}, &media.DecodeError{
					Path:   asset.Path,
					Window: idx,
					At:     time.Duration(idx) * window,
					Err:    err,
				})
				return
			}

			var f media.FeatureFrame
			f, prev = e.frame(w, prev)
			f.Index = idx
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Extract collects Frames. On a decode failure it returns the frames read
// before the failure together with the error.
func (e *Extractor) Extract(ctx context.Context, asset media.Asset) ([]media.FeatureFrame, error) {
	start := time.Now()
	var frames []media.FeatureFrame
	for f, err := range e.Frames(ctx, asset) {
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("asset", asset.Path).
				Int("windows", len(frames)).
				Msg("extraction stopped early")
			return frames, err
		}
		frames = append(frames, f)
	}

	e.logger.Debug().
		Str("asset", asset.Path).
		Int("windows", len(frames)).
		Dur("elapsed", time.Since(start)).
		Msg("extraction complete")
	return frames, nil
}

// frame summarizes one window: mean luminance and motion, peak face
// likelihood, RMS level and optional speech ratio.
func (e *Extractor) frame(w Window, prev image.Image) (media.FeatureFrame, image.Image) {
	f := media.FeatureFrame{
		Timestamp: w.Start,
		Window:    w.Length,
		AudioDB:   RMSDB(w.Samples),
	}
	if e.cfg.SpeechBand {
		f.SpeechRatio = SpeechRatio(w.Samples, w.SampleRate)
	}

	var lum, motion float64
	for _, img := range w.Frames {
		sig := e.analyzer.Analyze(prev, img)
		lum += sig.Luminance
		motion += sig.Motion
		f.Face = max(f.Face, clamp01(sig.Face))
		prev = img
	}
	if n := float64(len(w.Frames)); n > 0 {
		f.Luminance = clamp01(lum / n)
		f.Motion = max(0, motion/n)
	}
	return f, prev
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
