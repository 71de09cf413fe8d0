package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ukclimate/gridalign/internal/crop"
	"github.com/ukclimate/gridalign/internal/domain"
)

// RunCrop executes the crop pass: it enumerates the *converted* file
// population under the output sub-paths and clips every file to each
// configured region.
//
// Cropping depends on the conversion pass having run. If no converted
// files exist yet, RunCrop fails, or, with AutoSync set, runs the
// conversion pass itself and retries.
func (m *Manager) RunCrop(ctx context.Context) ([]JobResult, error) {
	regions, err := m.cropRegions()
	if err != nil {
		return nil, err
	}
	if m.cfg.CropRoot == "" {
		return nil, fmt.Errorf("batch: crop root not configured")
	}

	descs := m.convertedDescriptors()
	if len(descs) == 0 {
		if !m.cfg.AutoSync {
			return nil, fmt.Errorf("batch: no converted files under output paths; run the conversion pass first")
		}
		m.log.Info().Msg("no converted files found, auto-syncing conversion pass")
		if _, err := m.RunConvert(ctx); err != nil {
			return nil, fmt.Errorf("batch: auto-sync conversion: %w", err)
		}
		descs = m.convertedDescriptors()
		if len(descs) == 0 {
			return nil, fmt.Errorf("batch: conversion pass produced no files to crop")
		}
	}

	// One crop job per (converted file, region) pair.
	expanded := make([]Descriptor, 0, len(descs)*len(regions))
	for _, d := range descs {
		for i := range regions {
			dd := d
			dd.Region = &regions[i]
			dd.OutputPath = filepath.Join(m.cfg.CropRoot, regions[i].Name, d.Source.CropName(regions[i].Name))
			expanded = append(expanded, dd)
		}
	}

	return m.execute(ctx, expanded, func(d Descriptor) task {
		job := &crop.Job{
			Source:       d.Source,
			Region:       *d.Region,
			InputPath:    d.InputPath,
			OutputPath:   d.OutputPath,
			Store:        m.store,
			Log:          m.log,
			SkipExisting: true,
		}
		return job.Execute
	})
}

// convertedDescriptors enumerates converted files under the output
// sub-paths, honoring the same windows as the conversion pass.
func (m *Manager) convertedDescriptors() []Descriptor {
	var descs []Descriptor
	for d := range m.descriptors(func(sub SubPath) string { return sub.OutputDir }) {
		if !d.Source.Converted() {
			continue
		}
		descs = append(descs, d)
	}
	return descs
}

func (m *Manager) cropRegions() ([]domain.RegionSpec, error) {
	names := m.cfg.Regions
	if len(names) == 0 {
		names = domain.RegionNames()
	}
	regions := make([]domain.RegionSpec, 0, len(names))
	for _, name := range names {
		spec, err := domain.RegionByName(name)
		if err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
		regions = append(regions, spec)
	}
	return regions, nil
}
