package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Asset is a discovered source video. It is immutable once discovered.
type Asset struct {
	ID         string        `json:"id"`
	Path       string        `json:"path"`
	RelDir     string        `json:"rel_dir"`
	Container  string        `json:"container"`
	Duration   time.Duration `json:"duration"`
	FrameRate  float64       `json:"frame_rate"`
	SampleRate int           `json:"sample_rate"`
	HasAudio   bool          `json:"has_audio"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	ModTime    time.Time     `json:"mod_time"`
	Size       int64         `json:"size"`
	// Stem names the asset's outputs. It differs from BaseName only when
	// another asset in the same directory shares the base name.
	Stem string `json:"stem,omitempty"`
}

// BaseName returns the file name without directory or extension.
func (a Asset) BaseName() string {
	base := filepath.Base(a.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputStem returns Stem, falling back to BaseName.
func (a Asset) OutputStem() string {
	if a.Stem != "" {
		return a.Stem
	}
	return a.BaseName()
}

// AssignStems gives every asset a stem that is unique within its relative
// directory. The first asset in order keeps its base name; later ones with
// the same name get the extension appended ("trip_mov"), then a counter.
// Comparison ignores case so outputs stay distinct on case-insensitive
// filesystems.
func AssignStems(assets []Asset) {
	taken := make(map[string]bool, len(assets))
	key := func(a Asset, stem string) string {
		return filepath.Join(a.RelDir, strings.ToLower(stem))
	}

	var pending []int
	for i := range assets {
		k := key(assets[i], assets[i].BaseName())
		if taken[k] {
			pending = append(pending, i)
			continue
		}
		taken[k] = true
		assets[i].Stem = assets[i].BaseName()
	}

	for _, i := range pending {
		a := &assets[i]
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(a.Path), "."))
		stem := a.BaseName() + "_" + ext
		for n := 2; taken[key(*a, stem)]; n++ {
			stem = fmt.Sprintf("%s_%s_%d", a.BaseName(), ext, n)
		}
		taken[key(*a, stem)] = true
		a.Stem = stem
	}
}

// FeatureFrame holds the normalized signals of one analysis window.
type FeatureFrame struct {
	Index     int           `json:"index"`
	Timestamp time.Duration `json:"timestamp"`
	Window    time.Duration `json:"window"`
	// Luminance is mean Rec.601 luma in [0,1].
	Luminance float64 `json:"luminance"`
	// Motion is mean absolute luma change between sampled frames, >= 0.
	Motion float64 `json:"motion"`
	// Face is a face-presence likelihood in [0,1].
	Face float64 `json:"face"`
	// AudioDB is RMS energy in dBFS, floored at SilenceDB.
	AudioDB float64 `json:"audio_db"`
	// SpeechRatio is the share of spectral energy in the speech band, [0,1].
	SpeechRatio float64 `json:"speech_ratio"`
}

// End returns the exclusive end of the window.
func (f FeatureFrame) End() time.Duration {
	return f.Timestamp + f.Window
}

// SilenceDB is the floor used for digital silence.
const SilenceDB = -90.0
