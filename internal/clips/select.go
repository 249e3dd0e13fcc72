package clips

import (
	"math"
	"sort"
	"time"

	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/scene"
	"github.com/rs/zerolog"
)

// scores closer than this are treated as a tie
const tieEpsilon = 1e-9

// TargetRange converts a clips-per-hour rate into a clip count range for
// an asset of the given duration. Both bounds are at least 1.
func TargetRange(d time.Duration, perHourMin, perHourMax float64) (lo, hi int) {
	h := d.Hours()
	lo = int(math.Floor(perHourMin * h))
	hi = int(math.Ceil(perHourMax * h))
	lo = max(lo, 1)
	hi = max(hi, lo)
	return lo, hi
}

// SelectorConfig configures clip selection
type SelectorConfig struct {
	PerHourMin float64
	PerHourMax float64
	MinGap     time.Duration
	// ScoreTolerance groups candidates whose scores are within this fraction
	// of the tier's best into one tier, so near-equal scenes are spread out.
	ScoreTolerance float64
}

// Selector picks the clips to render from an asset's scene candidates.
type Selector struct {
	logger zerolog.Logger
	cfg    SelectorConfig
}

// NewSelector creates a selector
func NewSelector(logger zerolog.Logger, cfg SelectorConfig) *Selector {
	return &Selector{
		logger: logger.With().Str("component", "selector").Logger(),
		cfg:    cfg,
	}
}

// Select ranks candidates by mean score and greedily accepts those that keep
// MinGap to everything already accepted, up to the asset's target count.
// Within a tier of near-equal scores, the candidate farthest from accepted
// clips wins, then the earliest. The result is chronological with ranks 1..n.
func (s *Selector) Select(asset media.Asset, candidates []scene.Candidate) []Clip {
	lo, hi := TargetRange(asset.Duration, s.cfg.PerHourMin, s.cfg.PerHourMax)

	pool := make([]Clip, 0, len(candidates))
	for _, c := range candidates {
		end := c.End
		if asset.Duration > 0 && end > asset.Duration {
			end = asset.Duration
		}
		if c.Start < 0 || c.Start >= end {
			continue
		}
		pool = append(pool, Clip{
			AssetID:  asset.ID,
			Start:    c.Start,
			End:      end,
			Score:    c.MeanScore,
			Peak:     c.PeakScore,
			Dominant: c.Dominant,
		})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return pool[i].Start < pool[j].Start
	})

	set := NewSet(s.cfg.MinGap)
	for i := 0; i < len(pool) && set.Len() < hi; {
		tol := tieEpsilon + s.cfg.ScoreTolerance*pool[i].Score
		j := i + 1
		for j < len(pool) && pool[i].Score-pool[j].Score <= tol {
			j++
		}
		s.acceptTier(set, pool[i:j], hi)
		i = j
	}

	out := set.All()
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := range out {
		out[i].Rank = i + 1
		out[i].ID = clipID(asset.ID, i+1)
	}

	ev := s.logger.Debug()
	if len(out) < lo {
		ev = s.logger.Info()
	}
	ev.Str("asset", asset.Path).
		Int("candidates", len(candidates)).
		Int("selected", len(out)).
		Int("target_min", lo).
		Int("target_max", hi).
		Msg("clips selected")

	return out
}

// acceptTier accepts members of one tier, farthest first.
func (s *Selector) acceptTier(set *Set, tier []Clip, limit int) {
	taken := make([]bool, len(tier))
	for set.Len() < limit {
		best, bestDist := -1, -1.0
		for k, c := range tier {
			if taken[k] || !set.Fits(c) {
				continue
			}
			d := set.Distance(c)
			if best < 0 || d > bestDist || (d == bestDist && c.Start < tier[best].Start) {
				best, bestDist = k, d
			}
		}
		if best < 0 {
			return
		}
		taken[best] = true
		set.Add(tier[best])
	}
}
