package render

import (
	"fmt"
	"time"

	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
)

// TransitionKind is how a clip enters and leaves.
type TransitionKind string

const (
	// TransitionCrossfade fades picture from and to black.
	TransitionCrossfade TransitionKind = "crossfade"
	// TransitionCut starts and ends on a hard edit.
	TransitionCut TransitionKind = "cut"
)

// Transitions lists the supported kinds.
func Transitions() []TransitionKind {
	return []TransitionKind{TransitionCrossfade, TransitionCut}
}

// ParseTransition validates a transition name; empty selects crossfade.
func ParseTransition(s string) (TransitionKind, error) {
	switch TransitionKind(s) {
	case "", TransitionCrossfade:
		return TransitionCrossfade, nil
	case TransitionCut:
		return TransitionCut, nil
	}
	return "", fmt.Errorf("unknown transition %q", s)
}

// Transition is applied at both ends of a clip.
type Transition struct {
	Kind     TransitionKind `json:"kind"`
	Duration time.Duration  `json:"duration"`
}

// Trim selects the clip from the source.
type Trim struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Job is a complete render instruction for the encoder. It is never
// modified after assembly.
type Job struct {
	ID         string           `json:"id"`
	Asset      media.Asset      `json:"asset"`
	Clip       clips.Clip       `json:"clip"`
	Mix        mix.Plan         `json:"mix"`
	OutputPath string           `json:"output_path"`
	Resolution media.Resolution `json:"resolution"`
	Width      int              `json:"width,omitempty"`
	Height     int              `json:"height,omitempty"`
	Trim       Trim             `json:"trim"`
	Transition Transition       `json:"transition"`
	// Envelope is the music gain relative to the clip start.
	Envelope []mix.Breakpoint `json:"envelope,omitempty"`
}

// HasMusic reports whether the job mixes in a music track.
func (j Job) HasMusic() bool {
	return j.Mix.Music != nil
}
