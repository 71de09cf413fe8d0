// Package convert implements the per-file conversion state machine:
// idempotency check, reprojection, calendar normalization, persist.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ukclimate/gridalign/internal/calendar"
	"github.com/ukclimate/gridalign/internal/domain"
)

// ErrOutputExists is returned when a job would overwrite an existing
// output file. Redoing work requires removing the old output first.
var ErrOutputExists = errors.New("convert: output file already exists")

// Store abstracts reading and writing gridded series, so jobs are
// testable without NetCDF files on disk.
type Store interface {
	Read(path string) (*domain.Series, error)
	Write(path string, s *domain.Series) error
}

// Status is the terminal state of one job execution.
type Status string

const (
	// StatusWritten: the full reproject/normalize/write path ran.
	StatusWritten Status = "written"
	// StatusOutputExists: the output was already on disk; skipped.
	StatusOutputExists Status = "output-exists"
	// StatusAlreadyConverted: the input is already in target form;
	// passed through unmodified.
	StatusAlreadyConverted Status = "already-converted"
)

// Result reports where one job ended up.
type Result struct {
	Input  string
	Output string
	Status Status
}

// Skipped reports whether the job short-circuited without writing.
func (r Result) Skipped() bool { return r.Status != StatusWritten }

// Job binds one source file to one output path and the strategy that
// reprojects it. A Job is used for exactly one Execute call and holds
// no state across calls.
type Job struct {
	Source      domain.SourceFile
	InputPath   string
	OutputPath  string
	Store       Store
	Reprojector Reprojector
	Log         zerolog.Logger

	// MaxGapDays bounds calendar gap interpolation; zero means the
	// default.
	MaxGapDays int
	// SkipExisting turns an existing output into a silent skip
	// instead of ErrOutputExists. The batch manager always sets it.
	SkipExisting bool
}

// Execute runs the conversion state machine for one file.
func (j *Job) Execute(ctx context.Context) (Result, error) {
	res := Result{Input: j.InputPath, Output: j.OutputPath}

	if _, err := os.Stat(j.OutputPath); err == nil {
		if j.SkipExisting {
			j.Log.Debug().Str("output", j.OutputPath).Msg("output exists, skipping")
			res.Status = StatusOutputExists
			return res, nil
		}
		return res, fmt.Errorf("%w: %s", ErrOutputExists, j.OutputPath)
	}

	src, err := j.Store.Read(j.InputPath)
	if err != nil {
		return res, fmt.Errorf("convert %s: %w", j.InputPath, err)
	}

	if calendar.AlreadyNormalized(src) {
		j.Log.Debug().Str("input", j.InputPath).Msg("already converted, passing through")
		res.Status = StatusAlreadyConverted
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	reprojected, err := j.Reprojector.Reproject(ctx, j.InputPath, src)
	if err != nil {
		return res, fmt.Errorf("convert %s: %w", j.InputPath, err)
	}

	normalized, err := calendar.Normalize(reprojected, calendar.Options{MaxGapDays: j.MaxGapDays})
	if err != nil {
		return res, fmt.Errorf("convert %s: %w", j.InputPath, err)
	}

	if err := j.Store.Write(j.OutputPath, normalized); err != nil {
		return res, fmt.Errorf("convert %s: %w", j.InputPath, err)
	}
	res.Status = StatusWritten
	j.Log.Info().
		Str("input", j.InputPath).
		Str("output", j.OutputPath).
		Int("days", normalized.NT()).
		Msg("converted")
	return res, nil
}
