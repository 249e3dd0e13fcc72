package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/clipbot/internal/clips"
	"github.com/keagan/clipbot/internal/config"
	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/internal/mix"
	"github.com/keagan/clipbot/internal/render"
	"github.com/keagan/clipbot/internal/scene"
	"github.com/keagan/clipbot/pkg/util"
)

const instrumentation = "github.com/keagan/clipbot/internal/pipeline"

// Pipeline orchestrates discovery, analysis and encoding of a batch
type Pipeline struct {
	logger    zerolog.Logger
	cfg       *config.Config
	deps      Deps
	scorer    *scene.Scorer
	segmenter *scene.Segmenter
	selector  *clips.Selector
	planner   *mix.Planner

	tracer  trace.Tracer
	assets  metric.Int64Counter
	clipsOK metric.Int64Counter
}

// New creates a pipeline. Configuration problems are returned as
// *media.ConfigurationError before any asset is touched.
func New(logger zerolog.Logger, cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("feature source is required")
	}

	sceneCfg, err := SceneConfig(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := RenderConfig(cfg, ""); err != nil {
		return nil, err
	}
	planner, err := mix.NewPlanner(logger, MixConfig(cfg), mix.DefaultProfiles())
	if err != nil {
		return nil, err
	}

	meter := otel.Meter(instrumentation)
	assets, err := meter.Int64Counter("clipbot.assets",
		metric.WithDescription("assets processed, by status"))
	if err != nil {
		return nil, fmt.Errorf("creating asset counter: %w", err)
	}
	produced, err := meter.Int64Counter("clipbot.clips",
		metric.WithDescription("clips written"))
	if err != nil {
		return nil, fmt.Errorf("creating clip counter: %w", err)
	}

	return &Pipeline{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		cfg:       cfg,
		deps:      deps,
		scorer:    scene.NewScorer(sceneCfg),
		segmenter: scene.NewSegmenter(logger, sceneCfg),
		selector:  clips.NewSelector(logger, SelectorConfig(cfg)),
		planner:   planner,
		tracer:    otel.Tracer(instrumentation),
		assets:    assets,
		clipsOK:   produced,
	}, nil
}

func (p *Pipeline) workers() int {
	if p.cfg.Concurrency > 0 {
		return p.cfg.Concurrency
	}
	return runtime.NumCPU()
}

// Analyze runs extraction, scoring, selection, mix planning and assembly
// for one asset without encoding. Jobs are placed under the work dir.
func (p *Pipeline) Analyze(ctx context.Context, asset media.Asset) (*AssetPlan, error) {
	rc, err := RenderConfig(p.cfg, p.cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	return p.analyze(ctx, asset, render.NewAssembler(rc))
}

func (p *Pipeline) analyze(ctx context.Context, asset media.Asset, asm *render.Assembler) (*AssetPlan, error) {
	ctx, span := p.tracer.Start(ctx, "analyze", trace.WithAttributes(attribute.String("asset", asset.Path)))
	defer span.End()

	log := p.logger.With().Str("asset", asset.Path).Logger()
	plan := &AssetPlan{Asset: asset}

	frames, err := p.deps.Source.Extract(ctx, asset)
	if err != nil {
		var decodeErr *media.DecodeError
		if !errors.As(err, &decodeErr) || len(frames) == 0 {
			span.RecordError(err)
			span.SetStatus(codes.Error, "extraction failed")
			return nil, err
		}
		plan.Truncated = true
		plan.TruncatedAt = frames[len(frames)-1].End()
		plan.DecodeError = err.Error()
		log.Warn().Err(err).Dur("usable", plan.TruncatedAt).Msg("decode failed part way, using frames read so far")
	}
	plan.Windows = len(frames)

	curve := p.scorer.Curve(frames)
	plan.Candidates, err = p.segmenter.Segment(asset.Path, curve)
	if err != nil {
		span.RecordError(err)
		return nil, withTruncation(plan, err)
	}

	plan.Clips = p.selector.Select(asset, plan.Candidates)
	if len(plan.Clips) == 0 {
		return nil, withTruncation(plan, &media.InsufficientContentError{Path: asset.Path, Reason: "no candidate fits the selection constraints"})
	}

	if p.deps.Music != nil {
		plan.Track = p.deps.Music.Pick(asset.ID)
	}
	plan.Plans = p.planner.PlanAll(plan.Clips, frames, plan.Track)

	plan.Jobs, err = asm.Assemble(asset, plan.Clips, plan.Plans)
	if err != nil {
		return nil, fmt.Errorf("assembling render jobs: %w", err)
	}

	span.SetAttributes(
		attribute.Int("windows", plan.Windows),
		attribute.Int("candidates", len(plan.Candidates)),
		attribute.Int("clips", len(plan.Clips)),
	)
	log.Debug().
		Int("windows", plan.Windows).
		Int("candidates", len(plan.Candidates)).
		Int("clips", len(plan.Clips)).
		Str("track", plan.Track).
		Msg("asset analyzed")
	return plan, nil
}

// withTruncation appends the decode failure of a truncated asset to an
// insufficient-content error.
func withTruncation(plan *AssetPlan, err error) error {
	var insufficient *media.InsufficientContentError
	if !plan.Truncated || !errors.As(err, &insufficient) {
		return err
	}
	return &media.InsufficientContentError{
		Path:   insufficient.Path,
		Reason: fmt.Sprintf("%s (truncated at %s: %s)", insufficient.Reason, plan.TruncatedAt, plan.DecodeError),
	}
}

type indexed struct {
	i int
	o Outcome
}

// Run processes every asset under input and writes clips under output.
// Per-asset problems never abort the batch; they are reported in the
// outcomes. Cancelling ctx marks unfinished assets as skipped and returns
// the partial report with ctx.Err().
func (p *Pipeline) Run(ctx context.Context, input, output string) (*Report, error) {
	if p.deps.Prober == nil || p.deps.Encoder == nil {
		return nil, fmt.Errorf("prober and encoder are required")
	}
	rc, err := RenderConfig(p.cfg, output)
	if err != nil {
		return nil, err
	}
	asm := render.NewAssembler(rc)

	report := &Report{
		RunID:     ulid.Make().String(),
		Input:     input,
		Output:    output,
		StartedAt: time.Now(),
	}

	ctx, span := p.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run_id", report.RunID)))
	defer span.End()

	assets, rejected, err := media.Discover(ctx, input, media.DiscoverOptions{
		Recursive: p.cfg.Recursive,
		Prober:    p.deps.Prober,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("run", report.RunID).
		Str("input", input).
		Int("assets", len(assets)).
		Int("rejected", len(rejected)).
		Int("workers", p.workers()).
		Msg("starting batch")

	outcomes := make([]Outcome, len(assets))
	results := make(chan indexed)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range results {
			outcomes[r.i] = r.o
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(p.workers())
	for i, asset := range assets {
		g.Go(func() error {
			results <- indexed{i: i, o: p.process(ctx, asset, asm)}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-collected

	for _, r := range rejected {
		outcomes = append(outcomes, Outcome{
			AssetID: media.AssetID(r.Path),
			Path:    r.Path,
			Status:  StatusSkipped,
			Reason:  r.Err.Error(),
		})
		p.record(ctx, StatusSkipped, 0)
	}

	report.Outcomes = outcomes
	report.FinishedAt = time.Now()
	report.Summary = summarize(outcomes)

	if p.cfg.Output.WriteReport {
		if err := WriteReport(report, output); err != nil {
			p.logger.Warn().Err(err).Msg("failed to write report")
		}
	}
	if p.deps.Store != nil {
		if err := p.deps.Store.SaveRun(report.storeRun()); err != nil {
			p.logger.Warn().Err(err).Msg("failed to record run")
		}
	}

	p.logger.Info().
		Str("run", report.RunID).
		Int("completed", report.Summary.Completed).
		Int("skipped", report.Summary.Skipped).
		Int("failed", report.Summary.Failed).
		Int("clips", report.Summary.Clips).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("batch complete")

	return report, ctx.Err()
}

// process carries one asset to a terminal outcome.
func (p *Pipeline) process(ctx context.Context, asset media.Asset, asm *render.Assembler) (out Outcome) {
	start := time.Now()
	out = Outcome{AssetID: asset.ID, Path: asset.Path}
	log := p.logger.With().Str("asset", asset.Path).Logger()
	defer func() {
		out.Elapsed = time.Since(start)
		p.record(ctx, out.Status, out.Clips-out.Existing)
		ev := log.Info()
		if out.Status != StatusCompleted {
			ev = log.Warn()
		}
		ev.Str("status", string(out.Status)).
			Str("reason", out.Reason).
			Int("clips", out.Clips).
			Dur("elapsed", out.Elapsed).
			Msg("asset finished")
	}()

	if ctx.Err() != nil {
		out.Status, out.Reason = StatusSkipped, "cancelled"
		return out
	}

	actx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.AssetTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, p.cfg.AssetTimeout)
	}
	defer cancel()

	plan, err := p.analyze(actx, asset, asm)
	if err != nil {
		out.Status, out.Reason = StatusSkipped, p.skipReason(ctx, actx, err)
		return out
	}
	if plan.Truncated {
		out.Truncated = true
		out.Note = fmt.Sprintf("truncated at %s: %s", plan.TruncatedAt, plan.DecodeError)
	}

	for _, job := range plan.Jobs {
		if p.cfg.Output.SkipExisting && util.FileExists(job.OutputPath) {
			log.Debug().Str("output", job.OutputPath).Msg("clip already exists, keeping it")
			out.Clips++
			out.Existing++
			continue
		}
		if err := p.deps.Encoder.Encode(actx, job); err != nil {
			if actx.Err() != nil {
				out.Status, out.Reason = StatusSkipped, p.skipReason(ctx, actx, err)
				return out
			}
			out.Status, out.Reason = StatusFailed, err.Error()
			return out
		}
		out.Clips++
	}

	out.Status = StatusCompleted
	return out
}

// skipReason explains why analysis of an asset stopped.
func (p *Pipeline) skipReason(batch, asset context.Context, err error) string {
	switch {
	case batch.Err() != nil:
		return "cancelled"
	case errors.Is(asset.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", p.cfg.AssetTimeout)
	}
	var insufficient *media.InsufficientContentError
	if errors.As(err, &insufficient) {
		return insufficient.Reason
	}
	return err.Error()
}

func (p *Pipeline) record(ctx context.Context, status Status, produced int) {
	p.assets.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	if produced > 0 {
		p.clipsOK.Add(ctx, int64(produced))
	}
}

func summarize(outcomes []Outcome) Summary {
	s := Summary{Assets: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case StatusCompleted:
			s.Completed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		s.Clips += o.Clips
	}
	return s
}
