package mix

import (
	"math"
	"sort"
	"time"
)

// FadeFloorDB is the gain at the silent end of a fade.
const FadeFloorDB = -60.0

// Breakpoint is one point of a gain envelope. Gain between breakpoints is
// linear in dB.
type Breakpoint struct {
	At     time.Duration `json:"at"`
	GainDB float64       `json:"gain_db"`
}

// GainAt evaluates env at t. Before the first and after the last breakpoint
// the nearest value holds; an empty envelope is 0 dB.
func GainAt(env []Breakpoint, t time.Duration) float64 {
	if len(env) == 0 {
		return 0
	}
	if t <= env[0].At {
		return env[0].GainDB
	}
	last := env[len(env)-1]
	if t >= last.At {
		return last.GainDB
	}
	i := sort.Search(len(env), func(i int) bool { return env[i].At > t })
	a, b := env[i-1], env[i]
	if b.At == a.At {
		return b.GainDB
	}
	frac := float64(t-a.At) / float64(b.At-a.At)
	return a.GainDB + frac*(b.GainDB-a.GainDB)
}

// Combine layers envelopes by summing their dB values, which multiplies
// their linear gains. The result has a breakpoint at every input time.
func Combine(envs ...[]Breakpoint) []Breakpoint {
	var times []time.Duration
	for _, env := range envs {
		for _, bp := range env {
			times = append(times, bp.At)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	out := make([]Breakpoint, 0, len(times))
	for i, t := range times {
		if i > 0 && t == times[i-1] {
			continue
		}
		var g float64
		for _, env := range envs {
			g += GainAt(env, t)
		}
		out = append(out, Breakpoint{At: t, GainDB: round(g)})
	}
	return out
}

// Offset adds db to every breakpoint.
func Offset(env []Breakpoint, db float64) []Breakpoint {
	out := make([]Breakpoint, len(env))
	for i, bp := range env {
		out[i] = Breakpoint{At: bp.At, GainDB: round(bp.GainDB + db)}
	}
	return out
}

// Window restricts env to [from, to], adding breakpoints at both edges.
func Window(env []Breakpoint, from, to time.Duration) []Breakpoint {
	out := []Breakpoint{{At: from, GainDB: GainAt(env, from)}}
	for _, bp := range env {
		if bp.At > from && bp.At < to {
			out = append(out, bp)
		}
	}
	if to > from {
		out = append(out, Breakpoint{At: to, GainDB: GainAt(env, to)})
	}
	return out
}

// FadeEnvelope returns the fade-in/fade-out ramps for a clip of the given
// length, as offsets from 0 dB.
func FadeEnvelope(length, fadeIn, fadeOut time.Duration) []Breakpoint {
	env := []Breakpoint{}
	if fadeIn > 0 {
		env = append(env, Breakpoint{At: 0, GainDB: FadeFloorDB}, Breakpoint{At: fadeIn, GainDB: 0})
	} else {
		env = append(env, Breakpoint{At: 0, GainDB: 0})
	}
	if fadeOut > 0 {
		if start := length - fadeOut; start > fadeIn {
			env = append(env, Breakpoint{At: start, GainDB: 0})
		}
		env = append(env, Breakpoint{At: length, GainDB: FadeFloorDB})
	} else if length > fadeIn {
		env = append(env, Breakpoint{At: length, GainDB: 0})
	}
	return env
}

// ClampFade limits a fade to half the clip.
func ClampFade(fade, clip time.Duration) time.Duration {
	return max(0, min(fade, clip/2))
}

// VolumeDB converts a linear volume in [0,1] to dB, floored at -90.
func VolumeDB(v float64) float64 {
	if v <= 0 {
		return -90
	}
	return math.Max(-90, round(20*math.Log10(v)))
}

// round keeps envelopes stable across platforms
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
