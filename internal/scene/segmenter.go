package scene

import (
	"time"

	"github.com/keagan/clipbot/internal/media"
	"github.com/rs/zerolog"
)

// Candidate is a contiguous span whose engagement exceeds the threshold.
type Candidate struct {
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
	MeanScore float64       `json:"mean_score"`
	PeakScore float64       `json:"peak_score"`
	Dominant  Signal        `json:"dominant_signal"`

	first, last int
}

// Duration returns End - Start.
func (c Candidate) Duration() time.Duration { return c.End - c.Start }

type state int

const (
	stateIdle state = iota
	stateActive
	stateCooling
)

func (s state) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateCooling:
		return "cooling"
	}
	return "idle"
}

// Segmenter cuts an engagement curve into scene candidates.
type Segmenter struct {
	logger zerolog.Logger
	cfg    Config
}

// NewSegmenter creates a segmenter
func NewSegmenter(logger zerolog.Logger, cfg Config) *Segmenter {
	if cfg.CutPolicy == "" {
		cfg.CutPolicy = CutLocalMin
	}
	return &Segmenter{
		logger: logger.With().Str("component", "segmenter").Logger(),
		cfg:    cfg,
	}
}

// Segment scans the curve and returns time-ordered, non-overlapping
// candidates. It returns *media.InsufficientContentError when none survive.
func (s *Segmenter) Segment(path string, curve Curve) ([]Candidate, error) {
	if len(curve.Points) == 0 {
		return nil, &media.InsufficientContentError{Path: path, Reason: "no feature frames"}
	}

	m := &machine{
		cfg:    s.cfg,
		points: curve.Points,
		tau:    curve.Threshold(s.cfg.ThresholdK),
		flat:   curve.Flat(s.cfg.FlatVariation),
	}
	raw := m.run()

	kept := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if c.Duration() < s.cfg.MinSceneLength {
			s.logger.Debug().
				Dur("start", c.Start).
				Dur("length", c.Duration()).
				Msg("discarding short scene")
			continue
		}
		kept = append(kept, c)
	}
	merged := s.merge(kept, curve.Points)

	s.logger.Debug().
		Str("asset", path).
		Float64("tau", m.tau).
		Bool("flat", m.flat).
		Int("raw", len(raw)).
		Int("forced_cuts", m.forcedCuts).
		Int("candidates", len(merged)).
		Msg("segmentation complete")

	if len(merged) == 0 {
		return nil, &media.InsufficientContentError{Path: path, Reason: "no scene rose above the engagement threshold"}
	}
	return merged, nil
}

// merge joins neighbours closer than GapMin unless that would exceed
// MaxClipDuration, which is what keeps forced cuts apart.
func (s *Segmenter) merge(in []Candidate, points []Point) []Candidate {
	if len(in) < 2 {
		return in
	}
	out := []Candidate{in[0]}
	for _, c := range in[1:] {
		prev := &out[len(out)-1]
		if c.Start-prev.End < s.cfg.GapMin && c.End-prev.Start <= s.cfg.MaxClipDuration {
			*prev = summarize(points, prev.first, c.last)
			continue
		}
		out = append(out, c)
	}
	return out
}

// machine is the segmentation state machine. Scenes end on exactly one of
// three branches: hysteresis timeout, duration limit, or end of curve.
type machine struct {
	cfg    Config
	points []Point
	tau    float64
	flat   bool

	st         state
	start      int
	lastActive int
	coolStart  int

	out        []Candidate
	forcedCuts int
}

func (m *machine) active(i int) bool {
	score := m.points[i].Score
	if score < m.cfg.MinScore {
		return false
	}
	if m.flat {
		return true
	}
	return score > m.tau
}

func (m *machine) run() []Candidate {
	n := len(m.points)
	for i := 0; i < n; i++ {
		m.step(i)

		if m.st == stateIdle || i+1 >= n {
			continue
		}
		if m.points[i+1].End()-m.points[m.start].At > m.cfg.MaxClipDuration {
			m.forceCut(i)
		}
	}
	if m.st != stateIdle {
		m.emit(m.start, m.lastActive)
	}
	return m.out
}

func (m *machine) step(i int) {
	active := m.active(i)
	switch m.st {
	case stateIdle:
		if active {
			m.st = stateActive
			m.start = i
			m.lastActive = i
		}
	case stateActive:
		if active {
			m.lastActive = i
		} else {
			m.st = stateCooling
			m.coolStart = i
		}
	case stateCooling:
		if active {
			m.st = stateActive
			m.lastActive = i
		} else if m.points[i].End()-m.points[m.coolStart].At >= m.cfg.GapMin {
			m.emit(m.start, m.lastActive)
			m.st = stateIdle
		}
	}
}

// forceCut ends the current scene because including window i+1 would
// exceed MaxClipDuration. Windows after the cut are replayed so the next
// scene starts on its first active window.
func (m *machine) forceCut(i int) {
	m.forcedCuts++
	cut := m.cutIndex(i)

	last := m.start
	for j := m.start; j < cut; j++ {
		if m.active(j) {
			last = j
		}
	}
	m.emit(m.start, last)
	m.st = stateIdle

	for j := cut; j <= i; j++ {
		m.step(j)
	}
}

// cutIndex returns the first window of the next piece. Cutting before i+1
// keeps every window up to the limit.
func (m *machine) cutIndex(i int) int {
	limit := i + 1
	if m.cfg.CutPolicy == CutHardLimit || m.cfg.CutSearch <= 0 {
		return limit
	}

	lo := m.start + 1
	for lo < limit && m.points[lo].At-m.points[m.start].At < m.cfg.MinSceneLength {
		lo++
	}
	for lo < limit && m.points[limit].At-m.points[lo].At > m.cfg.CutSearch {
		lo++
	}

	best := limit
	for c := limit; c >= lo; c-- {
		if m.points[c].Score < m.points[best].Score {
			best = c
		}
	}
	return best
}

func (m *machine) emit(first, last int) {
	m.out = append(m.out, summarize(m.points, first, last))
}

func summarize(points []Point, first, last int) Candidate {
	var sum, peak float64
	var parts [4]float64
	for i := first; i <= last; i++ {
		p := points[i]
		sum += p.Score
		if p.Score > peak {
			peak = p.Score
		}
		for k := range parts {
			parts[k] += p.parts[k]
		}
	}
	return Candidate{
		Start:     points[first].At,
		End:       points[last].End(),
		MeanScore: sum / float64(last-first+1),
		PeakScore: peak,
		Dominant:  dominant(parts),
		first:     first,
		last:      last,
	}
}
