package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/clipbot/internal/config"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/render"
	"github.com/keagan/clipbot/internal/store"
)

const window = 500 * time.Millisecond

var (
	quiet = media.FeatureFrame{Motion: 0.01, AudioDB: -50, Luminance: 0.4}
	loud  = media.FeatureFrame{Motion: 0.5, Face: 0.9, AudioDB: -10, Luminance: 0.55}
	black = media.FeatureFrame{AudioDB: media.SilenceDB}
)

// spike builds n windows of quiet footage with a loud burst from
// window from (inclusive) to to (exclusive).
func spike(n, from, to int) []media.FeatureFrame {
	out := make([]media.FeatureFrame, n)
	for i := range out {
		f := quiet
		if i >= from && i < to {
			f = loud
		}
		f.Index = i
		f.Timestamp = time.Duration(i) * window
		f.Window = window
		out[i] = f
	}
	return out
}

func blackFrames(n int) []media.FeatureFrame {
	out := make([]media.FeatureFrame, n)
	for i := range out {
		f := black
		f.Index = i
		f.Timestamp = time.Duration(i) * window
		f.Window = window
		out[i] = f
	}
	return out
}

type fakeProber struct{}

func (fakeProber) ProbeAsset(_ context.Context, path string) (media.Asset, error) {
	return media.Asset{
		Path:      path,
		Container: "mp4",
		Duration:  time.Minute,
		FrameRate: 2,
		HasAudio:  true,
	}, nil
}

type extraction struct {
	frames []media.FeatureFrame
	err    error
	// block waits for the context instead of returning
	block bool
	// hook runs before returning
	hook func()
}

type fakeSource struct {
	byName map[string]extraction
}

func (s *fakeSource) WindowFor(media.Asset) time.Duration { return window }

func (s *fakeSource) Fingerprint() string { return "fake" }

func (s *fakeSource) Extract(ctx context.Context, asset media.Asset) ([]media.FeatureFrame, error) {
	e, ok := s.byName[filepath.Base(asset.Path)]
	if !ok {
		return spike(120, 40, 46), nil
	}
	if e.hook != nil {
		e.hook()
	}
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return e.frames, e.err
}

type fakeEncoder struct {
	mu   sync.Mutex
	jobs []render.Job
	fail map[string]bool
}

func (e *fakeEncoder) Encode(_ context.Context, job render.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	if e.fail[filepath.Base(job.Asset.Path)] {
		return &media.EncodeError{Output: job.OutputPath, Err: errors.New("encoder exited with status 1")}
	}
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(job.OutputPath, []byte("clip"), 0o644)
}

func (e *fakeEncoder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

func writeInputs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.Concurrency = 2
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, src *fakeSource, enc *fakeEncoder, st *store.Store) *Pipeline {
	t.Helper()
	p, err := New(zerolog.Nop(), cfg, Deps{
		Source:  src,
		Encoder: enc,
		Prober:  fakeProber{},
		Store:   st,
	})
	require.NoError(t, err)
	return p
}

func outcomeFor(t *testing.T, r *Report, name string) Outcome {
	t.Helper()
	for _, o := range r.Outcomes {
		if filepath.Base(o.Path) == name {
			return o
		}
	}
	t.Fatalf("no outcome for %s", name)
	return Outcome{}
}

func TestRunMixedBatch(t *testing.T) {
	in := writeInputs(t, "a_good.mp4", "b_black.mp4", "c_broken.mp4", "d_truncated.mp4", "sub/e_good.mov", "notes.txt")
	out := t.TempDir()

	src := &fakeSource{byName: map[string]extraction{
		"b_black.mp4":  {frames: blackFrames(120)},
		"c_broken.mp4": {err: &media.DecodeError{Path: "c_broken.mp4", Err: errors.New("moov atom not found")}},
		"d_truncated.mp4": {
			frames: spike(20, 6, 12),
			err:    &media.DecodeError{Path: "d_truncated.mp4", Window: 20, At: 10 * time.Second, Err: errors.New("corrupt packet")},
		},
	}}
	enc := &fakeEncoder{}
	p := newPipeline(t, testConfig(t), src, enc, nil)

	report, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 5)
	assert.Equal(t, "a_good.mp4", filepath.Base(report.Outcomes[0].Path), "discovery order")
	assert.Equal(t, "e_good.mov", filepath.Base(report.Outcomes[4].Path))

	good := outcomeFor(t, report, "a_good.mp4")
	assert.Equal(t, StatusCompleted, good.Status)
	assert.Equal(t, 1, good.Clips)
	assert.FileExists(t, filepath.Join(out, "a_good_clip1.mp4"))
	assert.FileExists(t, filepath.Join(out, "sub", "e_good_clip1.mp4"), "relative dirs are preserved")

	blk := outcomeFor(t, report, "b_black.mp4")
	assert.Equal(t, StatusSkipped, blk.Status)
	assert.NotEmpty(t, blk.Reason)

	broken := outcomeFor(t, report, "c_broken.mp4")
	assert.Equal(t, StatusSkipped, broken.Status)
	assert.Contains(t, broken.Reason, "moov atom not found")

	trunc := outcomeFor(t, report, "d_truncated.mp4")
	assert.Equal(t, StatusCompleted, trunc.Status)
	assert.True(t, trunc.Truncated)
	assert.Contains(t, trunc.Note, "truncated at 10s")
	assert.Equal(t, 1, trunc.Clips)

	for _, job := range enc.jobs {
		if filepath.Base(job.Asset.Path) == "d_truncated.mp4" {
			assert.LessOrEqual(t, job.Clip.End, 10*time.Second, "clips come from the readable prefix only")
		}
	}

	assert.Equal(t, Summary{Assets: 5, Completed: 3, Skipped: 2, Failed: 0, Clips: 3}, report.Summary)
	assert.NotEmpty(t, report.RunID)

	data, err := os.ReadFile(filepath.Join(out, ReportFile))
	require.NoError(t, err)
	var written Report
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, report.RunID, written.RunID)
	assert.Equal(t, report.Summary, written.Summary)
}

func TestTruncatedWithoutClipsIsSkipped(t *testing.T) {
	in := writeInputs(t, "short.mp4")
	src := &fakeSource{byName: map[string]extraction{
		"short.mp4": {
			frames: blackFrames(20),
			err:    &media.DecodeError{Path: "short.mp4", Window: 20, At: 10 * time.Second, Err: errors.New("corrupt packet")},
		},
	}}
	p := newPipeline(t, testConfig(t), src, &fakeEncoder{}, nil)

	report, err := p.Run(context.Background(), in, t.TempDir())
	require.NoError(t, err)
	o := report.Outcomes[0]
	assert.Equal(t, StatusSkipped, o.Status)
	assert.Equal(t, 0, o.Clips)
	assert.Contains(t, o.Reason, "engagement threshold")
	assert.Contains(t, o.Reason, "truncated at 10s")
	assert.Contains(t, o.Reason, "corrupt packet")
}

func TestSameBaseNameGetsDistinctOutputs(t *testing.T) {
	in := writeInputs(t, "trip.mp4", "trip.mov")
	out := t.TempDir()
	enc := &fakeEncoder{}
	p := newPipeline(t, testConfig(t), &fakeSource{}, enc, nil)

	report, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.Completed)
	assert.Equal(t, 2, report.Summary.Clips)

	written := map[string]string{}
	for _, job := range enc.jobs {
		prev, dup := written[job.OutputPath]
		assert.False(t, dup, "%s written by %s and %s", job.OutputPath, prev, job.Asset.Path)
		written[job.OutputPath] = job.Asset.Path
	}
	assert.Equal(t, filepath.Join(in, "trip.mov"), written[filepath.Join(out, "trip_clip1.mp4")])
	assert.Equal(t, filepath.Join(in, "trip.mp4"), written[filepath.Join(out, "trip_mp4_clip1.mp4")])
}

func TestEncodeFailureDoesNotStopBatch(t *testing.T) {
	in := writeInputs(t, "a.mp4", "b.mp4")
	enc := &fakeEncoder{fail: map[string]bool{"a.mp4": true}}
	p := newPipeline(t, testConfig(t), &fakeSource{}, enc, nil)

	report, err := p.Run(context.Background(), in, t.TempDir())
	require.NoError(t, err)

	a := outcomeFor(t, report, "a.mp4")
	assert.Equal(t, StatusFailed, a.Status)
	assert.Contains(t, a.Reason, "encoder exited")
	assert.Equal(t, StatusCompleted, outcomeFor(t, report, "b.mp4").Status)
	assert.Equal(t, 1, report.Summary.Failed)
}

func TestAssetTimeoutIsSkipped(t *testing.T) {
	in := writeInputs(t, "slow.mp4", "fast.mp4")
	cfg := testConfig(t)
	cfg.AssetTimeout = 50 * time.Millisecond
	src := &fakeSource{byName: map[string]extraction{"slow.mp4": {block: true}}}
	p := newPipeline(t, cfg, src, &fakeEncoder{}, nil)

	report, err := p.Run(context.Background(), in, t.TempDir())
	require.NoError(t, err)

	slow := outcomeFor(t, report, "slow.mp4")
	assert.Equal(t, StatusSkipped, slow.Status)
	assert.Equal(t, "timed out after 50ms", slow.Reason)
	assert.Equal(t, StatusCompleted, outcomeFor(t, report, "fast.mp4").Status)
}

func TestCancellationSkipsRemainingAssets(t *testing.T) {
	in := writeInputs(t, "a.mp4", "b.mp4", "c.mp4")
	cfg := testConfig(t)
	cfg.Concurrency = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{byName: map[string]extraction{"a.mp4": {block: true, hook: cancel}}}
	enc := &fakeEncoder{}
	p := newPipeline(t, cfg, src, enc, nil)

	report, err := p.Run(ctx, in, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	for _, o := range report.Outcomes {
		assert.Equal(t, StatusSkipped, o.Status, o.Path)
		assert.Equal(t, "cancelled", o.Reason, o.Path)
	}
	assert.Zero(t, enc.count(), "nothing is encoded after cancellation")
}

func TestSkipExistingKeepsOutputs(t *testing.T) {
	in := writeInputs(t, "a.mp4")
	out := t.TempDir()
	enc := &fakeEncoder{}
	p := newPipeline(t, testConfig(t), &fakeSource{}, enc, nil)

	_, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)
	require.Equal(t, 1, enc.count())

	report, err := p.Run(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, enc.count(), "existing clip is not re-encoded")
	o := report.Outcomes[0]
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, 1, o.Clips)
	assert.Equal(t, 1, o.Existing)
}

func TestRunIsRecorded(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "clipbot.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	in := writeInputs(t, "a.mp4", "b.mp4")
	src := &fakeSource{byName: map[string]extraction{"b.mp4": {frames: blackFrames(120)}}}
	p := newPipeline(t, testConfig(t), src, &fakeEncoder{}, st)

	report, err := p.Run(context.Background(), in, t.TempDir())
	require.NoError(t, err)

	runs, err := st.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Completed)
	assert.Equal(t, 1, runs[0].Skipped)
	require.Len(t, runs[0].Outcomes, 2)
	assert.Equal(t, "completed", runs[0].Outcomes[0].Status)
}

func TestAnalyze(t *testing.T) {
	cfg := testConfig(t)
	p := newPipeline(t, cfg, &fakeSource{}, &fakeEncoder{}, nil)

	asset := media.Asset{ID: "x", Path: "/videos/show.mp4", RelDir: ".", Duration: time.Minute, HasAudio: true}
	plan, err := p.Analyze(context.Background(), asset)
	require.NoError(t, err)

	assert.Equal(t, 120, plan.Windows)
	require.Len(t, plan.Clips, 1)
	require.Len(t, plan.Plans, 1)
	require.Len(t, plan.Jobs, 1)
	assert.Nil(t, plan.Plans[0].Music, "no music configured")
	assert.True(t, strings.HasPrefix(plan.Jobs[0].OutputPath, cfg.WorkDir))
	assert.Equal(t, "show_clip1.mp4", filepath.Base(plan.Jobs[0].OutputPath))

	again, err := p.Analyze(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, plan.Clips, again.Clips, "analysis is deterministic")
	assert.Equal(t, plan.Plans, again.Plans)
}

type fixedTrack string

func (f fixedTrack) Pick(string) string { return string(f) }

func TestAnalyzeWithMusic(t *testing.T) {
	p, err := New(zerolog.Nop(), testConfig(t), Deps{Source: &fakeSource{}, Music: fixedTrack("/music/bed.mp3")})
	require.NoError(t, err)

	plan, err := p.Analyze(context.Background(), media.Asset{ID: "x", Path: "/v/show.mp4", Duration: time.Minute})
	require.NoError(t, err)
	require.NotNil(t, plan.Plans[0].Music)
	assert.Equal(t, "/music/bed.mp3", plan.Jobs[0].Mix.Music.Track)
	assert.True(t, plan.Jobs[0].HasMusic())
}

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*config.Config)
		field string
	}{
		{"cut policy", func(c *config.Config) { c.Scoring.CutPolicy = "midpoint" }, "scoring.cut_policy"},
		{"resolution", func(c *config.Config) { c.Output.Resolution = "4k" }, "output.resolution"},
		{"eq", func(c *config.Config) { c.Audio.EQProfile = "loudness-war" }, "audio.eq_profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.edit(cfg)
			_, err := New(zerolog.Nop(), cfg, Deps{Source: &fakeSource{}})
			var cfgErr *media.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
