package pipeline

import (
	"context"
	"time"

	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/features"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
	"github.com/keagan/clipbot/internal/render"
	"github.com/keagan/clipbot/internal/scene"
	"github.com/keagan/clipbot/internal/store"
)

// Encoder writes one render job to its output path.
type Encoder interface {
	Encode(ctx context.Context, job render.Job) error
}

// TrackPicker chooses the music track for an asset; "" means no music.
type TrackPicker interface {
	Pick(assetID string) string
}

// Deps are the adapters the pipeline drives.
type Deps struct {
	Source  features.Source
	Encoder Encoder
	Prober  media.Prober
	// Music may be nil for no background music.
	Music TrackPicker
	// Store records run history when set.
	Store *store.Store
}

// AssetPlan is everything decided for one asset before encoding.
type AssetPlan struct {
	Asset      media.Asset       `json:"asset"`
	Windows    int               `json:"windows"`
	Track      string            `json:"track,omitempty"`
	Candidates []scene.Candidate `json:"candidates"`
	Clips      []clips.Clip      `json:"clips"`
	Plans      []mix.Plan        `json:"plans"`
	Jobs       []render.Job      `json:"jobs"`
	// Truncated is set when decoding failed part way; TruncatedAt is the
	// end of the last good window.
	Truncated   bool          `json:"truncated,omitempty"`
	TruncatedAt time.Duration `json:"truncated_at,omitempty"`
	DecodeError string        `json:"decode_error,omitempty"`
}

// Status is the terminal state of an asset in a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is the result of one asset.
type Outcome struct {
	AssetID string `json:"asset_id"`
	Path    string `json:"path"`
	Status  Status `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Clips   int    `json:"clips_produced"`
	// Existing counts clips kept from an earlier run.
	Existing  int           `json:"existing,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Note      string        `json:"note,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Summary totals a run.
type Summary struct {
	Assets    int `json:"assets"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Clips     int `json:"clips"`
}

// Report is the terminal result of a batch, outcomes in discovery order.
type Report struct {
	RunID      string    `json:"run_id"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
	Summary    Summary   `json:"summary"`
}
