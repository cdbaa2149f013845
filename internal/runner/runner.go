// Package runner drives BuildCollection and ComputeDailyET over every scene
// of a job on a bounded worker pool, and reports what it produced and what
// it skipped.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/chrissnell/sebal/internal/collection"
	"github.com/chrissnell/sebal/internal/database"
	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/sebal"
	"github.com/chrissnell/sebal/internal/storage"
	"github.com/chrissnell/sebal/internal/types"
)

// DefaultWorkers is the scene pool size when none is configured.
const DefaultWorkers = 2

// Skip reasons.
const (
	ReasonEndmember   = "endmember_unavailable"
	ReasonGeometry    = "invalid_geometry"
	ReasonUpstream    = "upstream_unavailable"
	ReasonGrid        = "grid_mismatch"
	ReasonMeteorology = "invalid_meteorology"
	ReasonCancelled   = "cancelled"
	ReasonError       = "error"
)

// Job is one collection to process.
type Job struct {
	Footprint types.Footprint
	Dates     types.DateRange
	CloudMax  float64
	Sensors   []types.SensorGeneration
}

// SkipEvent records a scene that produced no output.
type SkipEvent struct {
	SceneID string
	Reason  string
	Err     error
}

// Report is the outcome of a run. Results and Skips follow scene order.
type Report struct {
	RunID   string
	Scenes  int
	Results []*sebal.DailyET
	Skips   []SkipEvent
}

// Options tunes a Runner.
type Options struct {
	Workers int
	Config  sebal.Config
	Engine  raster.Engine
	Logger  *zap.SugaredLogger
}

// Runner processes jobs against an imagery source and a meteorology
// provider, writing to a sink.
type Runner struct {
	source  imagery.Source
	meteo   meteo.Provider
	sink    storage.Sink
	engine  raster.Engine
	config  sebal.Config
	workers int
	logger  *zap.SugaredLogger
}

// New returns a Runner. A nil sink discards output.
func New(src imagery.Source, met meteo.Provider, sink storage.Sink, opts Options) *Runner {
	r := &Runner{
		source:  src,
		meteo:   met,
		sink:    sink,
		engine:  opts.Engine,
		config:  opts.Config.WithDefaults(),
		workers: opts.Workers,
		logger:  opts.Logger,
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	if r.engine == nil {
		r.engine = raster.NewLocal(0)
	}
	if r.logger == nil {
		r.logger = log.GetSugaredLogger()
	}
	return r
}

type outcome struct {
	result *sebal.DailyET
	err    error
}

// Run processes every scene of the job. A failing scene becomes a
// SkipEvent; only collection failures and cancellation end the run early.
func (r *Runner) Run(ctx context.Context, job Job) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	logger := r.logger.With("run", rep.RunID, "footprint", job.Footprint.String())

	run := database.Run{
		ID:        rep.RunID,
		Path:      job.Footprint.Path,
		Row:       job.Footprint.Row,
		StartDate: job.Dates.Start,
		EndDate:   job.Dates.End,
		CloudMax:  job.CloudMax,
		Sensors:   joinSensors(job.Sensors),
		ETMethod:  string(r.config.ETMethod),
		Status:    database.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.saveRun(ctx, run); err != nil {
		return rep, err
	}

	col, err := collection.BuildCollection(ctx, r.source, job.Footprint, job.Dates, job.CloudMax, job.Sensors)
	if err != nil {
		r.finish(ctx, &run, err)
		return rep, err
	}
	rep.Scenes = col.Count
	run.Scenes = col.Count
	logger.Infow("processing collection", "scenes", col.Count, "workers", r.workers)

	outcomes, err := r.process(ctx, job, col.Scenes, logger)
	if err != nil {
		r.finish(ctx, &run, err)
		return rep, err
	}

	for i, o := range outcomes {
		meta := col.Scenes[i]
		if o.err != nil {
			ev := SkipEvent{SceneID: meta.ID, Reason: Classify(o.err), Err: o.err}
			rep.Skips = append(rep.Skips, ev)
			logger.Warnw("scene skipped", "scene", ev.SceneID, "reason", ev.Reason, "error", ev.Err)
			if err := r.saveSkip(ctx, rep.RunID, ev); err != nil {
				logger.Errorw("could not store skip", "scene", ev.SceneID, "error", err)
			}
			continue
		}
		rep.Results = append(rep.Results, o.result)
		if err := r.saveResult(ctx, rep.RunID, o.result); err != nil {
			logger.Errorw("could not store result", "scene", meta.ID, "error", err)
		}
	}

	run.Processed = len(rep.Results)
	run.Skipped = len(rep.Skips)
	r.finish(ctx, &run, ctx.Err())
	logger.Infow("run finished", "processed", run.Processed, "skipped", run.Skipped)
	return rep, ctx.Err()
}

func (r *Runner) process(ctx context.Context, job Job, scenes []types.SceneMetadata, logger *zap.SugaredLogger) ([]outcome, error) {
	outcomes := make([]outcome, len(scenes))
	if len(scenes) == 0 {
		return outcomes, nil
	}

	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return nil, fmt.Errorf("creating scene pool: %w", err)
	}
	defer pool.Release()

	proc := sebal.NewProcessor(r.engine, job.Footprint, logger)
	var wg sync.WaitGroup
	for i, meta := range scenes {
		i, meta := i, meta
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			res, err := r.scene(ctx, proc, job.Footprint, meta)
			outcomes[i] = outcome{result: res, err: err}
		})
		if err != nil {
			wg.Done()
			outcomes[i] = outcome{err: fmt.Errorf("submitting scene %s: %w", meta.ID, err)}
		}
	}
	wg.Wait()
	return outcomes, nil
}

func (r *Runner) scene(ctx context.Context, proc *sebal.Processor, fp types.Footprint, meta types.SceneMetadata) (*sebal.DailyET, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sd, err := r.source.LoadScene(ctx, meta)
	if err != nil {
		return nil, err
	}
	dem, err := r.source.LoadDEM(ctx, fp, meta.Grid)
	if err != nil {
		return nil, err
	}
	met, err := r.meteo.ContextFor(ctx, meta)
	if err != nil {
		return nil, err
	}
	return proc.ComputeDailyET(ctx, sd, met, dem, r.config)
}

// Classify maps a scene error to a skip reason.
func Classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.Is(err, sebal.ErrEndmemberUnavailable):
		return ReasonEndmember
	case errors.Is(err, types.ErrInvalidGeometry):
		return ReasonGeometry
	case errors.Is(err, types.ErrUpstreamUnavailable):
		return ReasonUpstream
	case errors.Is(err, raster.ErrGridMismatch):
		return ReasonGrid
	case errors.Is(err, meteo.ErrInvalidContext):
		return ReasonMeteorology
	default:
		return ReasonError
	}
}

func (r *Runner) finish(ctx context.Context, run *database.Run, err error) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = database.RunCompleted
	if err != nil {
		run.Status = database.RunFailed
		run.Message = err.Error()
	}
	// The run record is written even when ctx is already cancelled.
	if serr := r.saveRun(context.WithoutCancel(ctx), *run); serr != nil {
		r.logger.Errorw("could not store run", "run", run.ID, "error", serr)
	}
}

func (r *Runner) saveRun(ctx context.Context, run database.Run) error {
	if r.sink == nil {
		return nil
	}
	return r.sink.SaveRun(ctx, run)
}

func (r *Runner) saveSkip(ctx context.Context, runID string, ev SkipEvent) error {
	if r.sink == nil {
		return nil
	}
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	return r.sink.SaveSkip(context.WithoutCancel(ctx), database.SceneSkip{
		RunID:   runID,
		SceneID: ev.SceneID,
		Reason:  ev.Reason,
		Message: msg,
	})
}

func (r *Runner) saveResult(ctx context.Context, runID string, d *sebal.DailyET) error {
	if r.sink == nil {
		return nil
	}
	rec, err := ResultRecord(runID, d)
	if err != nil {
		return err
	}
	return r.sink.SaveResult(context.WithoutCancel(ctx), rec)
}

// ResultRecord converts a scene product into its stored form.
func ResultRecord(runID string, d *sebal.DailyET) (database.SceneResult, error) {
	payload, err := d.Encode()
	if err != nil {
		return database.SceneResult{}, fmt.Errorf("encoding %s: %w", d.Scene.ID, err)
	}
	return database.SceneResult{
		RunID:       runID,
		SceneID:     d.Scene.ID,
		Acquired:    d.Scene.Acquired.UTC(),
		Sensor:      string(d.Scene.Sensor),
		OutputName:  d.Scene.OutputName(),
		ValidPixels: d.Stats.Valid,
		MinET:       d.Stats.Min,
		MaxET:       d.Stats.Max,
		MeanET:      d.Stats.Mean,
		ColdRow:     d.Cold.Pixel.Row,
		ColdCol:     d.Cold.Pixel.Col,
		ColdLST:     d.Cold.LST,
		HotRow:      d.Hot.Pixel.Row,
		HotCol:      d.Hot.Pixel.Col,
		HotLST:      d.Hot.LST,
		Payload:     payload,
	}, nil
}

func joinSensors(gens []types.SensorGeneration) string {
	if len(gens) == 0 {
		gens = types.AllSensors
	}
	s := make([]string, len(gens))
	for i, g := range gens {
		s[i] = string(g)
	}
	return strings.Join(s, ",")
}
