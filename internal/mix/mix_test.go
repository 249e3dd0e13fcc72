package mix

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 500 * time.Millisecond

func sec(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// voiceFrames covers [0, total) with quiet windows, loud inside any of the
// given [start, end) spans.
func voiceFrames(total float64, spans ...[2]float64) []media.FeatureFrame {
	var out []media.FeatureFrame
	for i := 0; time.Duration(i)*window < sec(total); i++ {
		at := time.Duration(i) * window
		f := media.FeatureFrame{Index: i, Timestamp: at, Window: window, AudioDB: -50, SpeechRatio: 0.8}
		for _, s := range spans {
			if at >= sec(s[0]) && at < sec(s[1]) {
				f.AudioDB = -10
			}
		}
		out = append(out, f)
	}
	return out
}

func newPlanner(t *testing.T, cfg Config) *Planner {
	t.Helper()
	p, err := NewPlanner(zerolog.Nop(), cfg, DefaultProfiles())
	require.NoError(t, err)
	return p
}

func clip(start, end float64) clips.Clip {
	return clips.Clip{ID: "a#01", AssetID: "a", Start: sec(start), End: sec(end), Rank: 1}
}

func TestNoMusicOmitsMusicFields(t *testing.T) {
	p := newPlanner(t, DefaultConfig())
	plan := p.Plan(clip(0, 10), voiceFrames(10, [2]float64{2, 4}), "")

	assert.Nil(t, plan.Music)
	assert.Equal(t, -14.0, plan.TargetLUFS)
	assert.Equal(t, 500*time.Millisecond, plan.FadeIn)

	raw, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "music")
	assert.NotContains(t, string(raw), "ducking")
	assert.NotContains(t, string(raw), "eq")
}

func TestDuckingEnvelope(t *testing.T) {
	cfg := DefaultConfig()
	p := newPlanner(t, cfg)
	c := clip(10, 22)
	frames := voiceFrames(30, [2]float64{13, 15}, [2]float64{18, 19})

	plan := p.Plan(c, frames, "track.mp3")
	require.NotNil(t, plan.Music)
	require.NotNil(t, plan.Music.Ducking)
	d := plan.Music.Ducking
	base := plan.Music.BaseGainDB

	require.Equal(t, []Region{
		{Start: sec(3), End: sec(5)},
		{Start: sec(8), End: sec(9)},
	}, d.Regions)

	inRamp := func(t time.Duration) bool {
		for _, r := range d.Regions {
			if t >= r.Start-cfg.Attack && t <= r.End+cfg.Release {
				return true
			}
		}
		return false
	}

	for at := time.Duration(0); at <= c.Duration(); at += 10 * time.Millisecond {
		g := GainAt(d.Breakpoints, at)
		voiced := false
		for _, r := range d.Regions {
			if at >= r.Start && at <= r.End {
				voiced = true
			}
		}
		switch {
		case voiced:
			assert.LessOrEqual(t, g, base+cfg.DuckDepthDB+1e-6, "gain at %s", at)
		case !inRamp(at):
			assert.InDelta(t, base, g, 1e-6, "gain at %s", at)
		}
	}

	for i := 1; i < len(d.Breakpoints); i++ {
		assert.Less(t, d.Breakpoints[i-1].At, d.Breakpoints[i].At)
	}
}

func TestCloseRegionsAreCoalesced(t *testing.T) {
	p := newPlanner(t, DefaultConfig())
	frames := voiceFrames(10, [2]float64{3, 4}, [2]float64{4.5, 5})

	plan := p.Plan(clip(0, 10), frames, "track.mp3")
	require.NotNil(t, plan.Music.Ducking)
	assert.Equal(t, []Region{{Start: sec(3), End: sec(5)}}, plan.Music.Ducking.Regions)
}

func TestVoiceAtClipStartIsDuckedImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FadeDuration = 0
	p := newPlanner(t, cfg)

	plan := p.Plan(clip(2, 8), voiceFrames(10, [2]float64{0, 3}), "track.mp3")
	m := plan.Music
	assert.InDelta(t, m.BaseGainDB+cfg.DuckDepthDB, GainAt(m.Envelope, 0), 1e-6)
	assert.InDelta(t, m.BaseGainDB, GainAt(m.Envelope, sec(6)), 1e-6)
}

func TestSpeechGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpeechGate = 0.9
	p := newPlanner(t, cfg)

	plan := p.Plan(clip(0, 10), voiceFrames(10, [2]float64{2, 4}), "track.mp3")
	require.NotNil(t, plan.Music.Ducking)
	assert.Empty(t, plan.Music.Ducking.Regions)
}

func TestDuckingDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ducking = false
	p := newPlanner(t, cfg)

	plan := p.Plan(clip(0, 10), voiceFrames(10, [2]float64{2, 4}), "track.mp3")
	assert.Nil(t, plan.Music.Ducking)
	assert.InDelta(t, plan.Music.BaseGainDB, GainAt(plan.Music.Envelope, sec(3)), 1e-6)
}

func TestFadesLayerOnDucking(t *testing.T) {
	cfg := DefaultConfig()
	p := newPlanner(t, cfg)

	plan := p.Plan(clip(0, 10), voiceFrames(10, [2]float64{0, 1}), "track.mp3")
	m := plan.Music
	assert.InDelta(t, m.BaseGainDB+cfg.DuckDepthDB+FadeFloorDB, GainAt(m.Envelope, 0), 1e-6)
	assert.InDelta(t, m.BaseGainDB+cfg.DuckDepthDB, GainAt(m.Envelope, sec(0.5)), 1e-6)
	assert.InDelta(t, m.BaseGainDB, GainAt(m.Envelope, sec(5)), 1e-6)
	assert.InDelta(t, m.BaseGainDB+FadeFloorDB, GainAt(m.Envelope, sec(10)), 1e-6)
}

func TestFadeIsClampedToHalfClip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FadeDuration = 5 * time.Second
	p := newPlanner(t, cfg)

	for _, length := range []float64{0.2, 0.6, 1, 3, 9.99, 12} {
		plan := p.Plan(clip(0, length), nil, "track.mp3")
		assert.LessOrEqual(t, plan.FadeIn, sec(length)/2)
		assert.LessOrEqual(t, plan.FadeOut, sec(length)/2)

		env := plan.Music.Envelope
		for i := 1; i < len(env); i++ {
			assert.LessOrEqual(t, env[i-1].At, env[i].At)
		}
	}

	assert.Equal(t, 300*time.Millisecond, ClampFade(time.Second, 600*time.Millisecond))
	assert.Equal(t, time.Duration(0), ClampFade(-time.Second, time.Second))
}

func TestPlanIsDeterministic(t *testing.T) {
	p := newPlanner(t, DefaultConfig())
	frames := voiceFrames(60, [2]float64{5, 9}, [2]float64{20, 21}, [2]float64{40, 50})
	cs := []clips.Clip{clip(3, 15), clip(18, 30), clip(38, 50)}

	a, err := json.Marshal(p.PlanAll(cs, frames, "track.mp3"))
	require.NoError(t, err)
	b, err := json.Marshal(p.PlanAll(cs, frames, "track.mp3"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEQ(t *testing.T) {
	r := DefaultProfiles()
	for _, name := range []string{"flat", "instrumental", "voice-clear", "warm", "bright"} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := r.Lookup("dubstep")
	assert.False(t, ok)
	assert.Len(t, r.List(), 5)
	assert.Equal(t, "bright", r.List()[0].Name)

	prof, _ := r.Lookup("instrumental")
	prof.Bands[0].FreqHz = 1
	again, _ := r.Lookup("instrumental")
	assert.Equal(t, 200.0, again.Bands[0].FreqHz)

	cfg := DefaultConfig()
	cfg.EQProfile = "dubstep"
	_, err := NewPlanner(zerolog.Nop(), cfg, r)
	var ce *media.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "audio.eq_profile", ce.Field)
}

func TestGainAt(t *testing.T) {
	env := []Breakpoint{{At: sec(1), GainDB: 0}, {At: sec(2), GainDB: -10}}
	assert.Equal(t, 0.0, GainAt(env, 0))
	assert.InDelta(t, -5.0, GainAt(env, sec(1.5)), 1e-9)
	assert.Equal(t, -10.0, GainAt(env, sec(3)))
	assert.Equal(t, 0.0, GainAt(nil, sec(3)))
}

func TestVolumeDB(t *testing.T) {
	assert.InDelta(t, -13.9794, VolumeDB(0.2), 1e-4)
	assert.Equal(t, 0.0, VolumeDB(1))
	assert.Equal(t, -90.0, VolumeDB(0))
}
