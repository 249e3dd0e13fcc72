package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/clipbot/internal/mix"
)

// FilterBuilder helps construct complex ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// Letterbox scales into width x height keeping the aspect ratio and pads
// the remainder.
func (fb *FilterBuilder) Letterbox(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width, height),
		"setsar=1",
	)
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%s", num(fps)))
	return fb
}

// Fade adds video fades of d at both ends of a clip of the given length
func (fb *FilterBuilder) Fade(length, d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("fade=t=in:st=0:d=%s", secs(d)),
		fmt.Sprintf("fade=t=out:st=%s:d=%s", secs(length-d), secs(d)),
	)
	return fb
}

// AudioFade adds audio fades at both ends of a clip of the given length
func (fb *FilterBuilder) AudioFade(length, in, out time.Duration) *FilterBuilder {
	if in > 0 {
		fb.filters = append(fb.filters, fmt.Sprintf("afade=t=in:st=0:d=%s", secs(in)))
	}
	if out > 0 {
		fb.filters = append(fb.filters, fmt.Sprintf("afade=t=out:st=%s:d=%s", secs(length-out), secs(out)))
	}
	return fb
}

// AudioVolume adjusts audio volume
func (fb *FilterBuilder) AudioVolume(volumeDB float64) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("volume=%sdB", num(volumeDB)))
	return fb
}

// Loudnorm normalizes to the target integrated loudness
func (fb *FilterBuilder) Loudnorm(targetLUFS float64) *FilterBuilder {
	fb.filters = append(fb.filters, LoudnormFilter(targetLUFS))
	return fb
}

// DialogueCompand evens out speech levels
func (fb *FilterBuilder) DialogueCompand() *FilterBuilder {
	fb.filters = append(fb.filters, "compand=attacks=0.02:decays=0.25:points=-80/-80|-45/-30|-20/-12|0/-6:gain=2")
	return fb
}

// EQ adds one filter per band of the profile
func (fb *FilterBuilder) EQ(p *mix.EQProfile) *FilterBuilder {
	if p == nil {
		return fb
	}
	for _, b := range p.Bands {
		if f := bandFilter(b); f != "" {
			fb.filters = append(fb.filters, f)
		}
	}
	return fb
}

// Envelope applies a gain envelope evaluated per audio frame
func (fb *FilterBuilder) Envelope(env []mix.Breakpoint) *FilterBuilder {
	if len(env) == 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("volume='pow(10,(%s)/20)':eval=frame", EnvelopeExpr(env)))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// Graph assembles labelled chains into a -filter_complex value.
type Graph struct {
	chains []string
}

// Chain adds in -> filters -> out. An empty chain passes through.
func (g *Graph) Chain(in []string, fb *FilterBuilder, out string, passthrough string) *Graph {
	body := fb.Build()
	if body == "" {
		body = passthrough
	}
	var b strings.Builder
	for _, l := range in {
		b.WriteString("[" + l + "]")
	}
	b.WriteString(body)
	b.WriteString("[" + out + "]")
	g.chains = append(g.chains, b.String())
	return g
}

// String joins the chains with semicolons
func (g *Graph) String() string {
	return strings.Join(g.chains, ";")
}

// EnvelopeExpr renders a piecewise-linear dB envelope as an ffmpeg
// expression in t.
func EnvelopeExpr(env []mix.Breakpoint) string {
	if len(env) == 0 {
		return "0"
	}
	expr := num(env[len(env)-1].GainDB)
	for i := len(env) - 2; i >= 0; i-- {
		a, b := env[i], env[i+1]
		if b.At <= a.At {
			continue
		}
		seg := num(a.GainDB)
		if a.GainDB != b.GainDB {
			seg = fmt.Sprintf("%s+(%s)*(t-%s)/%s",
				num(a.GainDB), num(b.GainDB-a.GainDB), secs(a.At), secs(b.At-a.At))
		}
		expr = fmt.Sprintf("if(lt(t,%s),%s,%s)", secs(b.At), seg, expr)
	}
	return expr
}

func bandFilter(b mix.Band) string {
	switch b.Kind {
	case mix.HighPass:
		return fmt.Sprintf("highpass=f=%s", num(b.FreqHz))
	case mix.LowPass:
		return fmt.Sprintf("lowpass=f=%s", num(b.FreqHz))
	case mix.Peak:
		q := b.Q
		if q <= 0 {
			q = 1
		}
		return fmt.Sprintf("equalizer=f=%s:t=q:w=%s:g=%s", num(b.FreqHz), num(q), num(b.GainDB))
	case mix.LowShelf:
		return fmt.Sprintf("bass=g=%s:f=%s", num(b.GainDB), num(b.FreqHz))
	case mix.HighShelf:
		return fmt.Sprintf("treble=g=%s:f=%s", num(b.GainDB), num(b.FreqHz))
	}
	return ""
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func secs(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
