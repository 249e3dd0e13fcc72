package render

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asset = media.Asset{
	ID:       "a",
	Path:     "/in/day2/sunset.avi",
	RelDir:   "day2",
	Duration: time.Minute,
}

func clipAt(rank int, start, end time.Duration) clips.Clip {
	return clips.Clip{ID: asset.ID + "#" + string(rune('0'+rank)), AssetID: asset.ID, Start: start, End: end, Rank: rank}
}

func TestParseTransition(t *testing.T) {
	k, err := ParseTransition("")
	require.NoError(t, err)
	assert.Equal(t, TransitionCrossfade, k)

	k, err = ParseTransition("cut")
	require.NoError(t, err)
	assert.Equal(t, TransitionCut, k)

	_, err = ParseTransition("wipe")
	assert.Error(t, err)
}

func TestAssemble(t *testing.T) {
	cs := []clips.Clip{
		clipAt(2, 30*time.Second, 40*time.Second),
		clipAt(1, 5*time.Second, 15*time.Second),
	}
	env := []mix.Breakpoint{{At: 0, GainDB: -74}, {At: time.Second, GainDB: -14}}
	plans := []mix.Plan{
		{ClipID: cs[1].ID, FadeIn: time.Second, FadeOut: time.Second, Music: &mix.MusicMix{Track: "t.mp3", Envelope: env}},
		{ClipID: cs[0].ID, FadeIn: time.Second, FadeOut: time.Second},
	}

	a := NewAssembler(Config{OutputDir: "/out", Resolution: media.Res1080p})
	jobs, err := a.Assemble(asset, cs, plans)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	first := jobs[0]
	assert.Equal(t, 1, first.Clip.Rank)
	assert.Equal(t, filepath.Join("/out", "day2", "sunset_clip1.mp4"), first.OutputPath)
	assert.Equal(t, Trim{Start: 5 * time.Second, Duration: 10 * time.Second}, first.Trim)
	assert.Equal(t, 1920, first.Width)
	assert.Equal(t, Transition{Kind: TransitionCrossfade, Duration: time.Second}, first.Transition)
	assert.Equal(t, env, first.Envelope)
	assert.True(t, first.HasMusic())

	second := jobs[1]
	assert.Equal(t, filepath.Join("/out", "day2", "sunset_clip2.mp4"), second.OutputPath)
	assert.Nil(t, second.Envelope)
	assert.False(t, second.HasMusic())
}

func TestAssembleCutAndOriginal(t *testing.T) {
	cs := []clips.Clip{clipAt(1, 0, 10*time.Second)}
	plans := []mix.Plan{{ClipID: cs[0].ID, FadeIn: time.Second}}

	jobs, err := NewAssembler(Config{Resolution: media.ResOriginal, Transition: TransitionCut}).Assemble(asset, cs, plans)
	require.NoError(t, err)
	assert.Zero(t, jobs[0].Width)
	assert.Equal(t, time.Duration(0), jobs[0].Transition.Duration)
}

func TestAssembleMissingPlan(t *testing.T) {
	cs := []clips.Clip{clipAt(1, 0, 10*time.Second)}
	_, err := NewAssembler(Config{}).Assemble(asset, cs, nil)
	assert.Error(t, err)
}

func TestAssembleDoesNotAliasPlans(t *testing.T) {
	cs := []clips.Clip{clipAt(1, 0, 10*time.Second)}
	env := []mix.Breakpoint{{At: 0, GainDB: -14}}
	plans := []mix.Plan{{ClipID: cs[0].ID, Music: &mix.MusicMix{Envelope: env}}}

	jobs, err := NewAssembler(Config{}).Assemble(asset, cs, plans)
	require.NoError(t, err)
	env[0].GainDB = 0
	assert.Equal(t, -14.0, jobs[0].Envelope[0].GainDB)
}
