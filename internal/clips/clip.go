package clips

import (
	"fmt"
	"math"
	"time"

	"github.com/keagan/clipbot/internal/scene"
)

// Clip represents a selected segment of one asset
type Clip struct {
	ID       string        `json:"id"`
	AssetID  string        `json:"asset_id"`
	Start    time.Duration `json:"start"`
	End      time.Duration `json:"end"`
	Rank     int           `json:"rank"`
	Score    float64       `json:"score"`
	Peak     float64       `json:"peak"`
	Dominant scene.Signal  `json:"dominant_signal"`
}

// Duration returns the clip length
func (c Clip) Duration() time.Duration {
	return c.End - c.Start
}

// Gap returns the distance between two clips; negative when they overlap.
func (c Clip) Gap(o Clip) time.Duration {
	return max(o.Start-c.End, c.Start-o.End)
}

func clipID(assetID string, rank int) string {
	return fmt.Sprintf("%s#%02d", assetID, rank)
}

// Set holds the clips accepted so far for one asset.
type Set struct {
	clips  []Clip
	minGap time.Duration
}

// NewSet creates an empty set enforcing minGap between members
func NewSet(minGap time.Duration) *Set {
	return &Set{
		clips:  make([]Clip, 0),
		minGap: minGap,
	}
}

// Fits reports whether c is at least minGap away from every member.
func (s *Set) Fits(c Clip) bool {
	for _, a := range s.clips {
		if c.Gap(a) < s.minGap {
			return false
		}
	}
	return true
}

// Distance returns the smallest gap between c and any member, or +Inf
// when the set is empty.
func (s *Set) Distance(c Clip) float64 {
	d := math.Inf(1)
	for _, a := range s.clips {
		d = math.Min(d, float64(c.Gap(a)))
	}
	return d
}

// Add adds a clip to the set
func (s *Set) Add(c Clip) {
	s.clips = append(s.clips, c)
}

// Len returns the number of members
func (s *Set) Len() int {
	return len(s.clips)
}

// All returns a copy of the members in insertion order
func (s *Set) All() []Clip {
	out := make([]Clip, len(s.clips))
	copy(out, s.clips)
	return out
}
