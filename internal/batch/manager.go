// Package batch enumerates the raw file population, derives aligned
// input/output path tables, and drives conversion and crop jobs over
// an index window, serially or across a bounded worker pool.
//
// Resumability comes from the jobs themselves: a job whose output file
// already exists is a silent skip, so rerunning an interrupted batch
// redoes only the missing outputs.
package batch

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ukclimate/gridalign/internal/adapter/raster"
	"github.com/ukclimate/gridalign/internal/convert"
	"github.com/ukclimate/gridalign/internal/domain"
	"github.com/ukclimate/gridalign/internal/observability"
)

// Config is the batch surface consumed by the CLIs.
type Config struct {
	Source domain.SourceType

	// InputRoot/OutputRoot are expanded per variable[/run]; the
	// explicit path lists override expansion when non-empty.
	InputRoot   string
	OutputRoot  string
	InputPaths  []string
	OutputPaths []string

	Variables []string
	// Runs narrows the model ensemble members; ignored for the
	// observational source.
	Runs []string

	// Start/Stop window over the sub-path table (half-open, clamped).
	Start, Stop int
	// JobStart/JobStop window over each sub-path's own file
	// population (half-open, clamped).
	JobStart, JobStop int

	// Workers > 1 enables the parallel pool; 0 means cores-1.
	Workers int

	// BestEffort logs and drops missing input sub-paths instead of
	// failing validation.
	BestEffort bool
	// AllowVariableInPath disables the variable-in-root guard.
	AllowVariableInPath bool

	// MaxGapDays bounds calendar gap interpolation (0 = default).
	MaxGapDays int

	// RefGridPath points at the grid to match; required for the
	// observational source.
	RefGridPath string

	// Regions selects crop targets for the crop pass; empty means the
	// whole catalog.
	Regions []string
	// CropRoot receives cropped files, one subdirectory per region.
	CropRoot string
	// AutoSync lets the crop pass run the conversion pass first when
	// it finds no converted files to consume.
	AutoSync bool
}

// Descriptor identifies one unit of work before it is materialized
// into a job.
type Descriptor struct {
	Sub        SubPath
	Index      int
	Source     domain.SourceFile
	InputPath  string
	OutputPath string

	// Region is set on crop-pass descriptors only.
	Region *domain.RegionSpec
}

// JobResult pairs a descriptor with its outcome. Err is per-file:
// sibling files keep processing when one fails.
type JobResult struct {
	Descriptor Descriptor
	Result     convert.Result
	Err        error
}

// Progress is a point-in-time snapshot of a batch run.
type Progress struct {
	Total   int64 `json:"total"`
	Done    int64 `json:"done"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

// Store is the full persistence surface the manager needs: regular
// series I/O plus the band-stack read-back of warped intermediates.
type Store interface {
	convert.Store
	convert.StackReader
}

// Manager owns the path tables and drives jobs over them. The tables
// are computed once at construction and never mutated; only the
// window bounds may be narrowed by the caller before execution.
type Manager struct {
	cfg      Config
	subPaths []SubPath
	store    Store
	warper   raster.Warper
	log      zerolog.Logger
	metrics  *observability.Metrics

	total, done, skipped, failed atomic.Int64
}

// NewManager derives and validates the path tables and returns a
// ready-to-run manager. Configuration errors surface here, before any
// file is touched.
func NewManager(cfg Config, store Store, warper raster.Warper, log zerolog.Logger, metrics *observability.Metrics) (*Manager, error) {
	subs, err := derivePaths(cfg)
	if err != nil {
		return nil, err
	}

	kept := subs[:0]
	for _, sub := range subs {
		info, err := os.Stat(sub.InputDir)
		switch {
		case err == nil && info.IsDir():
			kept = append(kept, sub)
		case cfg.BestEffort:
			log.Warn().Str("path", sub.InputDir).Msg("input sub-path missing, dropping (best effort)")
		case err != nil:
			return nil, fmt.Errorf("batch: input path %s: %w", sub.InputDir, err)
		default:
			return nil, fmt.Errorf("batch: input path %s is not a directory", sub.InputDir)
		}
	}

	return &Manager{
		cfg:      cfg,
		subPaths: kept,
		store:    store,
		warper:   warper,
		log:      log,
		metrics:  metrics,
	}, nil
}

// SubPaths returns the derived sub-path table.
func (m *Manager) SubPaths() []SubPath { return m.subPaths }

// SetWindow narrows the outer sub-path window before execution.
func (m *Manager) SetWindow(start, stop int) {
	m.cfg.Start, m.cfg.Stop = start, stop
}

// Progress reports the counters of the run in flight.
func (m *Manager) Progress() Progress {
	return Progress{
		Total:   m.total.Load(),
		Done:    m.done.Load(),
		Skipped: m.skipped.Load(),
		Failed:  m.failed.Load(),
	}
}

// Descriptors lazily produces conversion work units: the outer window
// selects sub-paths, the inner window selects files within each.
// Within a sub-path, order is lexicographic by filename, which the
// naming convention makes chronological.
func (m *Manager) Descriptors() iter.Seq[Descriptor] {
	return m.descriptors(func(sub SubPath) string { return sub.InputDir })
}

func (m *Manager) descriptors(dirOf func(SubPath) string) iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		start, stop := clampWindow(m.cfg.Start, m.cfg.Stop, len(m.subPaths))
		for _, sub := range m.subPaths[start:stop] {
			names, err := listNC(dirOf(sub))
			if err != nil {
				m.log.Error().Err(err).Str("path", dirOf(sub)).Msg("cannot list sub-path")
				continue
			}
			jStart, jStop := clampWindow(m.cfg.JobStart, m.cfg.JobStop, len(names))
			for i, name := range names[jStart:jStop] {
				src, err := domain.ParseSourceFile(name)
				if err != nil {
					m.log.Warn().Err(err).Str("file", name).Msg("skipping unparsable file name")
					continue
				}
				d := Descriptor{
					Sub:        sub,
					Index:      jStart + i,
					Source:     src,
					InputPath:  filepath.Join(dirOf(sub), name),
					OutputPath: filepath.Join(sub.OutputDir, src.ConvertedName()),
				}
				if !yield(d) {
					return
				}
			}
		}
	}
}

// listNC returns the sorted .nc file names directly under dir.
func listNC(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".nc") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RunConvert executes the conversion pass over the selected window.
// Results come back in descriptor order regardless of completion
// order. Per-file failures are logged and recorded, not fatal.
func (m *Manager) RunConvert(ctx context.Context) ([]JobResult, error) {
	reproject, err := m.buildReprojector()
	if err != nil {
		return nil, err
	}

	var descs []Descriptor
	for d := range m.Descriptors() {
		descs = append(descs, d)
	}

	return m.execute(ctx, descs, func(d Descriptor) task {
		job := &convert.Job{
			Source:       d.Source,
			InputPath:    d.InputPath,
			OutputPath:   d.OutputPath,
			Store:        m.store,
			Reprojector:  reproject,
			Log:          m.log,
			MaxGapDays:   m.cfg.MaxGapDays,
			SkipExisting: true,
		}
		return job.Execute
	})
}

// buildReprojector selects the per-source reprojection strategy.
func (m *Manager) buildReprojector() (convert.Reprojector, error) {
	if m.cfg.Source == domain.SourceCPM {
		return &convert.CPMReprojector{Warper: m.warper, Stack: m.store}, nil
	}
	if m.cfg.RefGridPath == "" {
		return nil, fmt.Errorf("batch: observational source requires a reference grid path")
	}
	ref, err := m.store.Read(m.cfg.RefGridPath)
	if err != nil {
		return nil, fmt.Errorf("batch: reference grid %s: %w", m.cfg.RefGridPath, err)
	}
	return &convert.HADSReprojector{Ref: ref}, nil
}

type task func(ctx context.Context) (convert.Result, error)

// execute runs one task per descriptor, serially or across a bounded
// pool. Job output paths are disjoint by construction, so no locking
// is needed across workers.
func (m *Manager) execute(ctx context.Context, descs []Descriptor, build func(Descriptor) task) ([]JobResult, error) {
	m.total.Store(int64(len(descs)))
	m.done.Store(0)
	m.skipped.Store(0)
	m.failed.Store(0)
	m.metrics.BatchRunning.Set(1)
	defer m.metrics.BatchRunning.Set(0)

	results := make([]JobResult, len(descs))

	run := func(i int) {
		d := descs[i]
		started := time.Now()
		res, err := build(d)(ctx)
		m.metrics.JobDuration.Observe(time.Since(started).Seconds())

		results[i] = JobResult{Descriptor: d, Result: res, Err: err}
		m.done.Add(1)
		switch {
		case err != nil:
			m.failed.Add(1)
			m.metrics.FileErrors.Inc()
			m.log.Error().Err(err).Str("file", d.InputPath).Msg("job failed")
		case res.Skipped():
			m.skipped.Add(1)
			m.metrics.FilesSkipped.Inc()
		default:
			m.metrics.FilesConverted.Inc()
		}
	}

	workers := m.workerCount()
	if workers <= 1 {
		for i := range descs {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			run(i)
		}
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range descs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			run(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// workerCount clamps the configured pool size to cores-1 so a batch
// never saturates the host.
func (m *Manager) workerCount() int {
	limit := runtime.NumCPU() - 1
	if limit < 1 {
		limit = 1
	}
	w := m.cfg.Workers
	if w <= 0 {
		w = limit
	}
	if w > limit {
		w = limit
	}
	return w
}
