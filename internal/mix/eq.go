package mix

import (
	"sort"
)

// BandKind is the filter shape of one EQ band.
type BandKind string

const (
	HighPass  BandKind = "highpass"
	LowPass   BandKind = "lowpass"
	Peak      BandKind = "peak"
	LowShelf  BandKind = "lowshelf"
	HighShelf BandKind = "highshelf"
)

// Band is one frequency adjustment. GainDB is ignored for pass filters.
type Band struct {
	Kind   BandKind `json:"kind"`
	FreqHz float64  `json:"freq_hz"`
	GainDB float64  `json:"gain_db,omitempty"`
	Q      float64  `json:"q,omitempty"`
}

// EQProfile is a named set of bands applied to the music track. The planner
// only records it; the encoder turns it into filters.
type EQProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Bands       []Band `json:"bands"`
}

// Registry manages available EQ profiles
type Registry struct {
	profiles map[string]EQProfile
}

// NewRegistry creates an empty profile registry
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]EQProfile),
	}
}

// Register adds or replaces a profile
func (r *Registry) Register(p EQProfile) {
	r.profiles[p.Name] = p
}

// Lookup retrieves a profile by name
func (r *Registry) Lookup(name string) (EQProfile, bool) {
	p, ok := r.profiles[name]
	if !ok {
		return EQProfile{}, false
	}
	p.Bands = append([]Band(nil), p.Bands...)
	return p, true
}

// List returns all registered profiles sorted by name
func (r *Registry) List() []EQProfile {
	out := make([]EQProfile, 0, len(r.profiles))
	for name := range r.profiles {
		p, _ := r.Lookup(name)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Built-in profile names
const (
	ProfileFlat         = "flat"
	ProfileInstrumental = "instrumental"
	ProfileVoiceClear   = "voice-clear"
	ProfileWarm         = "warm"
	ProfileBright       = "bright"
)

// DefaultProfiles returns a registry holding the built-in profiles.
func DefaultProfiles() *Registry {
	r := NewRegistry()
	r.Register(EQProfile{
		Name:        ProfileFlat,
		Description: "no equalization",
	})
	r.Register(EQProfile{
		Name:        ProfileInstrumental,
		Description: "cut rumble and make room for dialogue",
		Bands: []Band{
			{Kind: HighPass, FreqHz: 200},
			{Kind: Peak, FreqHz: 2500, GainDB: -4, Q: 1},
		},
	})
	r.Register(EQProfile{
		Name:        ProfileVoiceClear,
		Description: "deep scoop of the speech band under heavy narration",
		Bands: []Band{
			{Kind: HighPass, FreqHz: 120},
			{Kind: Peak, FreqHz: 1000, GainDB: -6, Q: 0.8},
			{Kind: Peak, FreqHz: 3000, GainDB: -3, Q: 1.2},
		},
	})
	r.Register(EQProfile{
		Name:        ProfileWarm,
		Description: "fuller lows, softened highs",
		Bands: []Band{
			{Kind: LowShelf, FreqHz: 150, GainDB: 3},
			{Kind: HighShelf, FreqHz: 6000, GainDB: -3},
		},
	})
	r.Register(EQProfile{
		Name:        ProfileBright,
		Description: "lifted highs for dull recordings",
		Bands: []Band{
			{Kind: HighPass, FreqHz: 80},
			{Kind: HighShelf, FreqHz: 5000, GainDB: 3},
		},
	})
	return r
}
