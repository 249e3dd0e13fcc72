package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"time"

	"github.com/keagan/clipbot/internal/features"
	"github.com/keagan/clipbot/internal/media"
	"github.com/rs/zerolog"
)

// DecoderConfig configures analysis decoding
type DecoderConfig struct {
	// SampleFPS is how many frames per second are analyzed.
	SampleFPS float64
	Width     int
	Height    int
	TempDir   string
}

// Decoder streams an asset as analysis windows: frames scaled to the
// analysis grid, and 16 kHz mono audio read from a temporary WAV.
type Decoder struct {
	logger zerolog.Logger
	exec   *Executor
	cfg    DecoderConfig
}

var (
	_ features.Decoder       = (*Decoder)(nil)
	_ features.Fingerprinter = (*Decoder)(nil)
)

// NewDecoder creates a decoder
func NewDecoder(exec *Executor, cfg DecoderConfig) *Decoder {
	if cfg.SampleFPS <= 0 {
		cfg.SampleFPS = 4
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 160, 90
	}
	return &Decoder{
		logger: exec.logger.With().Str("stage", "decode").Logger(),
		exec:   exec,
		cfg:    cfg,
	}
}

// Fingerprint describes the sampling that shapes decoded windows.
func (d *Decoder) Fingerprint() string {
	return fmt.Sprintf("ffmpeg:fps=%g:%dx%d", d.cfg.SampleFPS, d.cfg.Width, d.cfg.Height)
}

// Decode starts decoding asset in windows of the given length.
func (d *Decoder) Decode(ctx context.Context, asset media.Asset, window time.Duration) (features.WindowStream, error) {
	if window <= 0 {
		return nil, fmt.Errorf("invalid window %s", window)
	}

	ws := &windowStream{
		asset:  asset,
		window: window,
		total:  features.WindowCount(asset.Duration, window),
		fps:    d.cfg.SampleFPS,
		width:  d.cfg.Width,
		height: d.cfg.Height,
	}

	if asset.HasAudio {
		if err := d.openAudio(ctx, asset, ws); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// analysis continues as if the asset were silent
			d.logger.Warn().Err(err).Str("asset", asset.Path).Msg("audio unavailable")
		}
	}

	vf := NewFilterBuilder().
		FPS(d.cfg.SampleFPS).
		Custom(fmt.Sprintf("scale=%d:%d:flags=area", d.cfg.Width, d.cfg.Height)).
		Build()
	video, err := d.exec.Pipe(ctx, []string{
		"-i", asset.Path,
		"-an",
		"-vf", vf,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	})
	if err != nil {
		ws.closeAudio()
		return nil, err
	}
	ws.video = video
	ws.buf = make([]byte, d.cfg.Width*d.cfg.Height*3)
	return ws, nil
}

func (d *Decoder) openAudio(ctx context.Context, asset media.Asset, ws *windowStream) error {
	tmp, err := os.CreateTemp(d.cfg.TempDir, "clipbot-*.wav")
	if err != nil {
		return err
	}
	tmp.Close()
	ws.wavPath = tmp.Name()

	if err := d.exec.ExtractAudio(ctx, asset.Path, ws.wavPath, AnalysisFormat(), logProgress(d.logger, "audio extraction progress", asset.Duration)); err != nil {
		ws.closeAudio()
		return err
	}

	f, err := os.Open(ws.wavPath)
	if err != nil {
		ws.closeAudio()
		return err
	}
	ws.wav = f
	pcm, err := features.NewPCMReader(f)
	if err != nil {
		ws.closeAudio()
		return err
	}
	ws.pcm = pcm
	return nil
}

type windowStream struct {
	asset  media.Asset
	window time.Duration
	total  int
	next   int

	fps           float64
	width, height int
	video         *Stream
	buf           []byte
	last          image.Image

	wavPath string
	wav     *os.File
	pcm     *features.PCMReader
}

func (s *windowStream) Next() (features.Window, error) {
	if s.next >= s.total {
		return features.Window{}, io.EOF
	}
	idx := s.next
	start := time.Duration(idx) * s.window
	length := min(s.window, s.asset.Duration-start)

	w := features.Window{
		Index:  idx,
		Start:  start,
		Length: length,
	}

	want := max(1, int(math.Round(s.fps*length.Seconds())))
	for len(w.Frames) < want {
		if _, err := io.ReadFull(s.video, s.buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return features.Window{}, err
			}
			// the fps filter may drop a frame at the very end
			if start+length < s.asset.Duration-s.window {
				return features.Window{}, fmt.Errorf("video ended at %s of %s: %s",
					start, s.asset.Duration, s.video.Diagnostics())
			}
			break
		}
		s.last = rgbImage(s.buf, s.width, s.height)
		w.Frames = append(w.Frames, s.last)
	}
	if len(w.Frames) == 0 && s.last != nil {
		w.Frames = append(w.Frames, s.last)
	}

	if s.pcm != nil {
		w.SampleRate = s.pcm.SampleRate()
		n := int(float64(w.SampleRate) * length.Seconds())
		samples, err := s.pcm.Read(n)
		if err != nil && !errors.Is(err, io.EOF) {
			return features.Window{}, fmt.Errorf("read audio: %w", err)
		}
		w.Samples = samples
	}

	s.next++
	return w, nil
}

func (s *windowStream) Close() error {
	var err error
	if s.video != nil {
		err = s.video.Close()
	}
	s.closeAudio()
	return err
}

func (s *windowStream) closeAudio() {
	if s.wav != nil {
		s.wav.Close()
		s.wav = nil
	}
	if s.wavPath != "" {
		os.Remove(s.wavPath)
		s.wavPath = ""
	}
	s.pcm = nil
}

// rgbImage copies a packed rgb24 frame into an RGBA image.
func rgbImage(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i+2 < len(buf) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
