package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ukclimate/gridalign/internal/domain"
)

// SubPath is one (variable[, run]) slice of the file population: an
// input directory and the output directory aligned with it.
type SubPath struct {
	Variable string
	Run      string
	InputDir string
	// OutputDir receives converted files for this sub-path.
	OutputDir string
}

func (p SubPath) label() string {
	if p.Run != "" {
		return p.Variable + "/" + p.Run
	}
	return p.Variable
}

// derivePaths computes the aligned input/output sub-path tables from a
// Config, once, at construction. It performs no filesystem access; the
// result is immutable thereafter.
//
// Either explicit path lists are taken as-is (after a length check),
// or a parent root is expanded into one sub-path per variable, and per
// run for the model source.
func derivePaths(cfg Config) ([]SubPath, error) {
	if len(cfg.InputPaths) > 0 || len(cfg.OutputPaths) > 0 {
		if len(cfg.InputPaths) != len(cfg.OutputPaths) {
			return nil, fmt.Errorf("batch: %d input paths but %d output paths", len(cfg.InputPaths), len(cfg.OutputPaths))
		}
		subs := make([]SubPath, len(cfg.InputPaths))
		for i := range cfg.InputPaths {
			subs[i] = SubPath{
				Variable:  variableFromPath(cfg.InputPaths[i]),
				InputDir:  cfg.InputPaths[i],
				OutputDir: cfg.OutputPaths[i],
			}
		}
		return subs, nil
	}

	if cfg.InputRoot == "" || cfg.OutputRoot == "" {
		return nil, fmt.Errorf("batch: neither explicit paths nor input/output roots configured")
	}

	variables := cfg.Variables
	if len(variables) == 0 {
		variables = domain.KnownVariables()
	}

	// Guard against a root that is already variable-scoped: expanding
	// it again would silently double the variable segment.
	if !cfg.AllowVariableInPath {
		for _, v := range variables {
			if pathHasSegment(cfg.InputRoot, v) {
				return nil, fmt.Errorf("batch: input root %q already contains variable segment %q", cfg.InputRoot, v)
			}
		}
	}

	runs := cfg.Runs
	if cfg.Source == domain.SourceCPM && len(runs) == 0 {
		runs = domain.DefaultRuns
	}

	var subs []SubPath
	for _, v := range variables {
		if cfg.Source == domain.SourceCPM {
			for _, run := range runs {
				subs = append(subs, SubPath{
					Variable:  v,
					Run:       run,
					InputDir:  filepath.Join(cfg.InputRoot, v, run),
					OutputDir: filepath.Join(cfg.OutputRoot, v, run),
				})
			}
			continue
		}
		subs = append(subs, SubPath{
			Variable:  v,
			InputDir:  filepath.Join(cfg.InputRoot, v),
			OutputDir: filepath.Join(cfg.OutputRoot, v),
		})
	}
	return subs, nil
}

func pathHasSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// variableFromPath recovers the variable from an explicit sub-path by
// matching its segments against the catalog. Best effort: explicit
// paths may be scoped however the caller likes.
func variableFromPath(path string) string {
	for _, v := range domain.KnownVariables() {
		if pathHasSegment(path, v) {
			return v
		}
	}
	return ""
}

// clampWindow normalizes a half-open [start, stop) window against a
// population of n items. Stop <= 0 means "to the end".
func clampWindow(start, stop, n int) (int, int) {
	if stop <= 0 || stop > n {
		stop = n
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		start = stop
	}
	return start, stop
}
