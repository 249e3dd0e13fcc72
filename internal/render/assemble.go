package render

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
)

// Config configures assembly
type Config struct {
	OutputDir  string
	Resolution media.Resolution
	Transition TransitionKind
}

// Assembler turns clips and mix plans into render jobs. It does no I/O.
type Assembler struct {
	cfg Config
}

// NewAssembler creates an assembler
func NewAssembler(cfg Config) *Assembler {
	if cfg.Resolution == "" {
		cfg.Resolution = media.Res720p
	}
	if cfg.Transition == "" {
		cfg.Transition = TransitionCrossfade
	}
	return &Assembler{cfg: cfg}
}

// OutputPath names clip rank of asset under outDir, preserving the asset's
// relative directory.
func OutputPath(outDir string, asset media.Asset, rank int) string {
	name := fmt.Sprintf("%s_clip%d.mp4", asset.OutputStem(), rank)
	return filepath.Join(outDir, asset.RelDir, name)
}

// Assemble pairs each clip with the plan carrying its ID. Jobs are returned
// in rank order.
func (a *Assembler) Assemble(asset media.Asset, cs []clips.Clip, plans []mix.Plan) ([]Job, error) {
	byClip := make(map[string]mix.Plan, len(plans))
	for _, p := range plans {
		byClip[p.ClipID] = p
	}

	ordered := append([]clips.Clip(nil), cs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	w, h, scaled := a.cfg.Resolution.Dimensions()

	jobs := make([]Job, 0, len(ordered))
	for _, c := range ordered {
		plan, ok := byClip[c.ID]
		if !ok {
			return nil, fmt.Errorf("no mix plan for clip %s", c.ID)
		}
		if c.Start < 0 || c.End <= c.Start {
			return nil, fmt.Errorf("clip %s has empty range %s-%s", c.ID, c.Start, c.End)
		}

		job := Job{
			ID:         c.ID,
			Asset:      asset,
			Clip:       c,
			Mix:        plan.Clone(),
			OutputPath: OutputPath(a.cfg.OutputDir, asset, c.Rank),
			Resolution: a.cfg.Resolution,
			Trim:       Trim{Start: c.Start, Duration: c.Duration()},
			Transition: Transition{Kind: a.cfg.Transition},
		}
		if scaled {
			job.Width, job.Height = w, h
		}
		if a.cfg.Transition == TransitionCrossfade {
			job.Transition.Duration = plan.FadeIn
		}
		if job.Mix.Music != nil {
			job.Envelope = append([]mix.Breakpoint(nil), job.Mix.Music.Envelope...)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
