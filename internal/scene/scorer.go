package scene

import (
	"fmt"
	"math"
	"time"

	"github.com/keagan/clipbot/internal/media"
)

// Signal names the feature that contributed most to a score.
type Signal string

const (
	SignalMotion    Signal = "motion"
	SignalFace      Signal = "face"
	SignalAudio     Signal = "audio"
	SignalLuminance Signal = "luminance"
)

var signals = [4]Signal{SignalMotion, SignalFace, SignalAudio, SignalLuminance}

// Weights for the four engagement signals
type Weights struct {
	Motion    float64 `json:"motion"`
	Face      float64 `json:"face"`
	Audio     float64 `json:"audio"`
	Luminance float64 `json:"luminance"`
}

// DefaultWeights favours motion and faces over loudness and exposure.
func DefaultWeights() Weights {
	return Weights{Motion: 0.35, Face: 0.30, Audio: 0.25, Luminance: 0.10}
}

// CutPolicy decides where a run longer than MaxClipDuration is split.
type CutPolicy string

const (
	// CutLocalMin splits at the lowest-scoring window near the limit.
	CutLocalMin CutPolicy = "local-min"
	// CutHardLimit splits exactly at the limit.
	CutHardLimit CutPolicy = "hard-limit"
)

// ParseCutPolicy validates a policy name; empty selects CutLocalMin.
func ParseCutPolicy(s string) (CutPolicy, error) {
	switch CutPolicy(s) {
	case "", CutLocalMin:
		return CutLocalMin, nil
	case CutHardLimit:
		return CutHardLimit, nil
	}
	return "", fmt.Errorf("unknown cut policy %q", s)
}

// Config configures scoring and segmentation
type Config struct {
	Weights Weights
	// LuminanceFloor is the exposure below which scores are demoted.
	LuminanceFloor float64
	// DarkPenalty is the multiplier applied at zero luminance; it rises
	// linearly to 1 at LuminanceFloor.
	DarkPenalty float64
	// AudioFloorDB maps to an audio score of 0; 0 dBFS maps to 1.
	AudioFloorDB float64
	// MotionKnee is the motion magnitude that scores 0.5.
	MotionKnee float64
	// ThresholdK scales the standard deviation in tau = mean + k*stddev.
	ThresholdK float64
	// MinScore keeps near-silent black footage from ever becoming a scene.
	MinScore float64
	// FlatVariation is the stddev/mean ratio below which a curve counts as
	// flat and every window above MinScore is active.
	FlatVariation float64

	GapMin          time.Duration
	MinSceneLength  time.Duration
	MaxClipDuration time.Duration
	CutPolicy       CutPolicy
	// CutSearch bounds how far before the limit CutLocalMin looks.
	CutSearch time.Duration
}

func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		LuminanceFloor:  0.15,
		DarkPenalty:     0.5,
		AudioFloorDB:    -60,
		MotionKnee:      0.05,
		ThresholdK:      0.5,
		MinScore:        0.05,
		FlatVariation:   0.05,
		GapMin:          time.Second,
		MinSceneLength:  time.Second,
		MaxClipDuration: 12 * time.Second,
		CutPolicy:       CutLocalMin,
		CutSearch:       2 * time.Second,
	}
}

// Point is one sample of the engagement curve.
type Point struct {
	At       time.Duration
	Length   time.Duration
	Score    float64
	Dominant Signal
	parts    [4]float64
}

// End returns the exclusive end of the window.
func (p Point) End() time.Duration { return p.At + p.Length }

// Curve is the engagement score over an asset.
type Curve struct {
	Points []Point
	Mean   float64
	StdDev float64
}

// Threshold returns mean + k*stddev.
func (c Curve) Threshold(k float64) float64 {
	return c.Mean + k*c.StdDev
}

// Flat reports whether the curve has no usable variation: its stddev is
// below maxVariation of its mean.
func (c Curve) Flat(maxVariation float64) bool {
	if c.StdDev < 1e-9 {
		return true
	}
	return c.Mean > 0 && c.StdDev/c.Mean < maxVariation
}

// Scorer turns feature frames into engagement scores.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with normalized weights.
func NewScorer(cfg Config) *Scorer {
	w := cfg.Weights
	sum := w.Motion + w.Face + w.Audio + w.Luminance
	if sum <= 0 {
		w = DefaultWeights()
		sum = 1
	}
	cfg.Weights = Weights{
		Motion:    w.Motion / sum,
		Face:      w.Face / sum,
		Audio:     w.Audio / sum,
		Luminance: w.Luminance / sum,
	}
	if cfg.AudioFloorDB >= 0 {
		cfg.AudioFloorDB = -60
	}
	if cfg.MotionKnee <= 0 {
		cfg.MotionKnee = 0.05
	}
	return &Scorer{cfg: cfg}
}

// Score combines one frame's signals into a scalar in [0,1].
func (s *Scorer) Score(f media.FeatureFrame) (float64, Signal) {
	p := s.point(f)
	return p.Score, p.Dominant
}

func (s *Scorer) point(f media.FeatureFrame) Point {
	w := s.cfg.Weights

	motion := 0.0
	if f.Motion > 0 {
		motion = f.Motion / (f.Motion + s.cfg.MotionKnee)
	}
	audio := clamp01((f.AudioDB - s.cfg.AudioFloorDB) / -s.cfg.AudioFloorDB)
	// exposure quality peaks at mid grey
	exposure := 1 - math.Min(1, math.Abs(f.Luminance-0.5)/0.5)

	parts := [4]float64{
		w.Motion * motion,
		w.Face * clamp01(f.Face),
		w.Audio * audio,
		w.Luminance * exposure,
	}
	score := parts[0] + parts[1] + parts[2] + parts[3]

	if floor := s.cfg.LuminanceFloor; floor > 0 && f.Luminance < floor {
		penalty := s.cfg.DarkPenalty + (1-s.cfg.DarkPenalty)*clamp01(f.Luminance/floor)
		score *= penalty
		for i := range parts {
			parts[i] *= penalty
		}
	}

	return Point{
		At:       f.Timestamp,
		Length:   f.Window,
		Score:    clamp01(score),
		Dominant: dominant(parts),
		parts:    parts,
	}
}

// Curve scores every frame and computes the curve statistics.
func (s *Scorer) Curve(frames []media.FeatureFrame) Curve {
	c := Curve{Points: make([]Point, len(frames))}
	if len(frames) == 0 {
		return c
	}

	var sum float64
	for i, f := range frames {
		c.Points[i] = s.point(f)
		sum += c.Points[i].Score
	}
	c.Mean = sum / float64(len(frames))

	var sq float64
	for _, p := range c.Points {
		d := p.Score - c.Mean
		sq += d * d
	}
	c.StdDev = math.Sqrt(sq / float64(len(frames)))
	return c
}

func dominant(parts [4]float64) Signal {
	best := 0
	for i := 1; i < len(parts); i++ {
		if parts[i] > parts[best] {
			best = i
		}
	}
	return signals[best]
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
