package mix

import (
	"time"

	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/media"
	"github.com/rs/zerolog"
)

// Config configures mix planning
type Config struct {
	TargetLUFS       float64
	FadeDuration     time.Duration
	MusicVolume      float64
	Ducking          bool
	DuckDepthDB      float64
	Attack           time.Duration
	Release          time.Duration
	VoiceThresholdDB float64
	// SpeechGate additionally requires this speech-band ratio; 0 disables.
	SpeechGate float64
	EQProfile  string
	MuteSource bool
}

func DefaultConfig() Config {
	return Config{
		TargetLUFS:       -14,
		FadeDuration:     500 * time.Millisecond,
		MusicVolume:      0.2,
		Ducking:          true,
		DuckDepthDB:      -12,
		Attack:           150 * time.Millisecond,
		Release:          400 * time.Millisecond,
		VoiceThresholdDB: -30,
		EQProfile:        ProfileInstrumental,
	}
}

// Plan is the mixing plan for one clip. Times are relative to the clip start.
type Plan struct {
	ClipID     string        `json:"clip_id"`
	TargetLUFS float64       `json:"target_lufs"`
	FadeIn     time.Duration `json:"fade_in"`
	FadeOut    time.Duration `json:"fade_out"`
	MuteSource bool          `json:"mute_source,omitempty"`
	Music      *MusicMix     `json:"music,omitempty"`
}

// MusicMix is present only when a music track is configured.
type MusicMix struct {
	Track      string     `json:"track"`
	Volume     float64    `json:"volume"`
	BaseGainDB float64    `json:"base_gain_db"`
	Ducking    *Ducking   `json:"ducking,omitempty"`
	EQ         *EQProfile `json:"eq,omitempty"`
	// Envelope is the music gain with ducking and fades applied.
	Envelope []Breakpoint `json:"envelope"`
}

// Ducking describes where the music dips under voice.
type Ducking struct {
	DepthDB     float64       `json:"depth_db"`
	Attack      time.Duration `json:"attack"`
	Release     time.Duration `json:"release"`
	ThresholdDB float64       `json:"threshold_db"`
	Regions     []Region      `json:"regions"`
	// Breakpoints is the music gain from ducking alone.
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Region is a span of detected voice activity.
type Region struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Planner builds one Plan per clip. It holds no per-clip state.
type Planner struct {
	logger zerolog.Logger
	cfg    Config
	eq     *EQProfile
}

// minRamp keeps attack and release ramps from collapsing into steps
const minRamp = time.Millisecond

// NewPlanner creates a planner, resolving the EQ profile against the registry.
func NewPlanner(logger zerolog.Logger, cfg Config, profiles *Registry) (*Planner, error) {
	cfg.Attack = max(cfg.Attack, minRamp)
	cfg.Release = max(cfg.Release, minRamp)
	p := &Planner{
		logger: logger.With().Str("component", "mixer").Logger(),
		cfg:    cfg,
	}
	if cfg.EQProfile != "" {
		prof, ok := profiles.Lookup(cfg.EQProfile)
		if !ok {
			return nil, &media.ConfigurationError{Field: "audio.eq_profile", Reason: "unknown profile " + cfg.EQProfile}
		}
		p.eq = &prof
	}
	return p, nil
}

// Plan builds the mix plan for c. frames are the asset's feature frames; only
// those overlapping the clip are used. An empty track produces a plan
// without music.
func (p *Planner) Plan(c clips.Clip, frames []media.FeatureFrame, track string) Plan {
	length := c.Duration()
	fade := ClampFade(p.cfg.FadeDuration, length)

	plan := Plan{
		ClipID:     c.ID,
		TargetLUFS: p.cfg.TargetLUFS,
		FadeIn:     fade,
		FadeOut:    fade,
		MuteSource: p.cfg.MuteSource,
	}
	if track == "" {
		return plan
	}

	base := VolumeDB(p.cfg.MusicVolume)
	music := &MusicMix{
		Track:      track,
		Volume:     p.cfg.MusicVolume,
		BaseGainDB: base,
	}
	if p.eq != nil {
		eq := *p.eq
		eq.Bands = append([]Band(nil), p.eq.Bands...)
		music.EQ = &eq
	}

	duck := []Breakpoint{{At: 0, GainDB: 0}, {At: length, GainDB: 0}}
	if p.cfg.Ducking && !p.cfg.MuteSource {
		regions := p.voiceRegions(c, frames)
		offsets := p.duckOffsets(regions, length)
		music.Ducking = &Ducking{
			DepthDB:     p.cfg.DuckDepthDB,
			Attack:      p.cfg.Attack,
			Release:     p.cfg.Release,
			ThresholdDB: p.cfg.VoiceThresholdDB,
			Regions:     regions,
			Breakpoints: Offset(offsets, base),
		}
		duck = offsets
	}

	music.Envelope = Offset(Combine(duck, FadeEnvelope(length, fade, fade)), base)
	plan.Music = music

	p.logger.Debug().
		Str("clip", c.ID).
		Int("breakpoints", len(music.Envelope)).
		Dur("fade", fade).
		Msg("mix planned")
	return plan
}

// PlanAll plans every clip in order.
func (p *Planner) PlanAll(cs []clips.Clip, frames []media.FeatureFrame, track string) []Plan {
	out := make([]Plan, len(cs))
	for i, c := range cs {
		out[i] = p.Plan(c, frames, track)
	}
	return out
}

func (p *Planner) voiced(f media.FeatureFrame) bool {
	if f.AudioDB < p.cfg.VoiceThresholdDB {
		return false
	}
	return p.cfg.SpeechGate <= 0 || f.SpeechRatio >= p.cfg.SpeechGate
}

// voiceRegions finds voice activity inside the clip, relative to its start.
// Regions closer than attack+release are coalesced so their ramps never
// overlap.
func (p *Planner) voiceRegions(c clips.Clip, frames []media.FeatureFrame) []Region {
	var regions []Region
	for _, f := range frames {
		if f.End() <= c.Start || f.Timestamp >= c.End || !p.voiced(f) {
			continue
		}
		r := Region{
			Start: max(f.Timestamp, c.Start) - c.Start,
			End:   min(f.End(), c.End) - c.Start,
		}
		if n := len(regions); n > 0 && r.Start-regions[n-1].End <= p.cfg.Attack+p.cfg.Release {
			regions[n-1].End = max(regions[n-1].End, r.End)
			continue
		}
		regions = append(regions, r)
	}
	return regions
}

// duckOffsets returns the ducking envelope relative to base gain, windowed
// to the clip.
func (p *Planner) duckOffsets(regions []Region, length time.Duration) []Breakpoint {
	depth := p.cfg.DuckDepthDB
	var env []Breakpoint
	for _, r := range regions {
		env = append(env,
			Breakpoint{At: r.Start - p.cfg.Attack, GainDB: 0},
			Breakpoint{At: r.Start, GainDB: depth},
			Breakpoint{At: r.End, GainDB: depth},
			Breakpoint{At: r.End + p.cfg.Release, GainDB: 0},
		)
	}
	if len(env) == 0 {
		env = []Breakpoint{{At: 0, GainDB: 0}}
	}
	return Window(env, 0, length)
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	if p.Music == nil {
		return p
	}
	m := *p.Music
	m.Envelope = append([]Breakpoint(nil), m.Envelope...)
	if m.EQ != nil {
		eq := *m.EQ
		eq.Bands = append([]Band(nil), eq.Bands...)
		m.EQ = &eq
	}
	if m.Ducking != nil {
		d := *m.Ducking
		d.Regions = append([]Region(nil), d.Regions...)
		d.Breakpoints = append([]Breakpoint(nil), d.Breakpoints...)
		m.Ducking = &d
	}
	p.Music = &m
	return p
}
