package domain

import (
	"fmt"
	"strings"
)

// SourceType distinguishes the two grid products the pipeline accepts.
type SourceType int

const (
	// SourceCPM is the 2.2km regional climate model product: 360-day
	// calendar, rotated-pole grid, one ensemble run per file.
	SourceCPM SourceType = iota
	// SourceHADS is the 1km gridded observational product: standard
	// calendar, national-grid projection.
	SourceHADS
)

// String returns the short tag used in cropped file names.
func (t SourceType) String() string {
	if t == SourceCPM {
		return "cpm"
	}
	return "hads"
}

// Calendar tags appearing in file names. Converting a model file swaps
// rawCalTag for stdCalTag in place, which is how downstream consumers
// (and the idempotency check) recognize converted artifacts.
const (
	rawCalTag = "day"
	stdCalTag = "day-std-year"

	hadsRawResTag       = "1km"
	hadsConvertedResTag = "2.2km-resampled"
)

// SourceFile describes one on-disk artifact by its name alone. The
// name encodes variable, ensemble run (model source only) and an
// inclusive date range; nothing else about the file is trusted until
// it is read.
type SourceFile struct {
	Name     string
	Source   SourceType
	Variable string
	// Run is the ensemble-run identifier; empty for observational files.
	Run        string
	Start, End Date

	segments []string
	calIdx   int
}

// ParseSourceFile parses a file name following either naming
// convention:
//
//	{variable}_{scenario}_..._{run}_day_{start}-{end}.nc   (model)
//	{variable}_{gridname}_..._day_{start}-{end}.nc         (observational)
//
// A two-digit segment directly before the calendar tag marks a model
// file. Converted names (day-std-year tag) parse the same way.
func ParseSourceFile(name string) (SourceFile, error) {
	base := name
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	stem, ok := strings.CutSuffix(base, ".nc")
	if !ok {
		return SourceFile{}, fmt.Errorf("source file %q: not a .nc file", name)
	}

	segs := strings.Split(stem, "_")
	if len(segs) < 4 {
		return SourceFile{}, fmt.Errorf("source file %q: too few name segments", name)
	}

	dates := segs[len(segs)-1]
	calTag := segs[len(segs)-2]
	if calTag != rawCalTag && calTag != stdCalTag {
		return SourceFile{}, fmt.Errorf("source file %q: unexpected calendar tag %q", name, calTag)
	}

	startStr, endStr, ok := strings.Cut(dates, "-")
	if !ok {
		return SourceFile{}, fmt.Errorf("source file %q: missing date range", name)
	}
	start, err := ParseYMD(startStr)
	if err != nil {
		return SourceFile{}, fmt.Errorf("source file %q: %w", name, err)
	}
	end, err := ParseYMD(endStr)
	if err != nil {
		return SourceFile{}, fmt.Errorf("source file %q: %w", name, err)
	}
	if !start.Before(end) {
		return SourceFile{}, fmt.Errorf("source file %q: start %s not before end %s", name, startStr, endStr)
	}

	f := SourceFile{
		Name:     base,
		Variable: segs[0],
		Start:    start,
		End:      end,
		segments: segs,
		calIdx:   len(segs) - 2,
	}

	if run := segs[len(segs)-3]; len(run) == 2 && isDigits(run) {
		f.Source = SourceCPM
		f.Run = run
	} else {
		f.Source = SourceHADS
	}
	return f, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Converted reports whether the name already carries a converted tag.
func (f SourceFile) Converted() bool {
	if f.segments[f.calIdx] == stdCalTag {
		return true
	}
	for _, seg := range f.segments {
		if seg == hadsConvertedResTag {
			return true
		}
	}
	return false
}

// ConvertedName derives the output name for the converted artifact by
// swapping a single tag segment in place: the calendar tag for model
// files, the resolution tag for observational files. The date-range
// suffix is never restructured.
func (f SourceFile) ConvertedName() string {
	segs := append([]string(nil), f.segments...)
	switch f.Source {
	case SourceCPM:
		segs[f.calIdx] = stdCalTag
	case SourceHADS:
		for i, seg := range segs {
			if seg == hadsRawResTag {
				segs[i] = hadsConvertedResTag
			}
		}
	}
	return strings.Join(segs, "_") + ".nc"
}

// CropName derives the output name for a crop of this file to the
// named region, condensing the stem to the fields consumers key on.
func (f SourceFile) CropName(region string) string {
	parts := []string{"crop", region, f.Variable, f.Source.String()}
	if f.Run != "" {
		parts = append(parts, f.Run)
	}
	parts = append(parts, f.Start.YMD()+"-"+f.End.YMD())
	return strings.Join(parts, "_") + ".nc"
}
