package features

import (
	"errors"
	"io"
	"math"
	"math/cmplx"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/keagan/clipbot/internal/media"
	"github.com/mjibson/go-dsp/fft"
)

// Speech band used for the voice gate
const (
	SpeechLowHz  = 300.0
	SpeechHighHz = 3400.0
)

// RMSDB returns the RMS level of samples in dBFS, floored at media.SilenceDB.
func RMSDB(samples []float64) float64 {
	if len(samples) == 0 {
		return media.SilenceDB
	}
	var sq float64
	for _, s := range samples {
		sq += s * s
	}
	rms := math.Sqrt(sq / float64(len(samples)))
	if rms <= 0 {
		return media.SilenceDB
	}
	return math.Max(media.SilenceDB, 20*math.Log10(rms))
}

// SpeechRatio returns the share of spectral energy between SpeechLowHz and
// SpeechHighHz, in [0,1].
func SpeechRatio(samples []float64, sampleRate int) float64 {
	if len(samples) < 2 || sampleRate <= 0 {
		return 0
	}
	spectrum := fft.FFTReal(samples)
	n := len(samples)
	binHz := float64(sampleRate) / float64(n)

	var total, band float64
	for k := 1; k <= n/2; k++ {
		p := cmplx.Abs(spectrum[k])
		p *= p
		total += p
		if f := float64(k) * binHz; f >= SpeechLowHz && f <= SpeechHighHz {
			band += p
		}
	}
	if total == 0 {
		return 0
	}
	return band / total
}

// PCMReader reads a WAV file as mono float samples in fixed-size chunks.
type PCMReader struct {
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	channels int
	scale    float64
}

// NewPCMReader validates the WAV header of r.
func NewPCMReader(r io.ReadSeeker) (*PCMReader, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	if dec.BitDepth == 0 || dec.NumChans == 0 {
		return nil, errors.New("wav header has no format")
	}
	return &PCMReader{
		dec:      dec,
		channels: int(dec.NumChans),
		scale:    math.Pow(2, float64(dec.BitDepth)-1),
	}, nil
}

// SampleRate returns the file's sample rate.
func (p *PCMReader) SampleRate() int {
	return int(p.dec.SampleRate)
}

// Read returns up to n mono samples. It returns io.EOF once the data chunk
// is exhausted.
func (p *PCMReader) Read(n int) ([]float64, error) {
	want := n * p.channels
	if p.buf == nil || len(p.buf.Data) != want {
		p.buf = &audio.IntBuffer{Data: make([]int, want)}
	}

	got := 0
	for got < want {
		chunk := &audio.IntBuffer{Data: p.buf.Data[got:]}
		m, err := p.dec.PCMBuffer(chunk)
		if err != nil {
			return nil, err
		}
		if m == 0 {
			break
		}
		got += m
	}
	if got == 0 {
		return nil, io.EOF
	}

	frames := got / p.channels
	out := make([]float64, frames)
	for i := range out {
		var sum float64
		for c := 0; c < p.channels; c++ {
			sum += float64(p.buf.Data[i*p.channels+c])
		}
		out[i] = sum / float64(p.channels) / p.scale
	}
	return out, nil
}
