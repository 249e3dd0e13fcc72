package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keagan/clipbot/internal/store"
	"github.com/keagan/clipbot/pkg/util"
)

// ReportFile is written at the root of the output directory.
const ReportFile = "report.json"

// WriteReport writes r as indented JSON to dir/report.json.
func WriteReport(r *Report, dir string) error {
	if err := util.EnsureDir(dir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	path := filepath.Join(dir, ReportFile)
	tmp := util.PartPath(path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return util.Promote(tmp, path)
}

func (r *Report) storeRun() *store.Run {
	run := &store.Run{
		ID:         r.RunID,
		Input:      r.Input,
		Output:     r.Output,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Processed:  r.Summary.Assets,
		Completed:  r.Summary.Completed,
		Skipped:    r.Summary.Skipped,
		Failed:     r.Summary.Failed,
		Clips:      r.Summary.Clips,
	}
	for _, o := range r.Outcomes {
		reason := o.Reason
		if reason == "" {
			reason = o.Note
		}
		run.Outcomes = append(run.Outcomes, store.Outcome{
			AssetID:   o.AssetID,
			Path:      o.Path,
			Status:    string(o.Status),
			Reason:    reason,
			Clips:     o.Clips,
			Truncated: o.Truncated,
		})
	}
	return run
}
