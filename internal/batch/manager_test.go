package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukclimate/gridalign/internal/convert"
	"github.com/ukclimate/gridalign/internal/domain"
	"github.com/ukclimate/gridalign/internal/observability"
)

// memStore is a concurrency-safe in-memory store. Writes also touch
// the path on disk so the jobs' existence checks see real state.
type memStore struct {
	mu     sync.Mutex
	series map[string]*domain.Series
}

func newMemStore() *memStore {
	return &memStore{series: map[string]*domain.Series{}}
}

func (m *memStore) Read(path string) (*domain.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.series[path]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no series at %s", path)
}

func (m *memStore) Write(path string, s *domain.Series) error {
	m.mu.Lock()
	m.series[path] = s
	m.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("x"), 0o644)
}

func (m *memStore) ReadStack(path string, times []domain.Date) (*domain.Series, error) {
	s, err := m.Read(path)
	if err != nil {
		return nil, err
	}
	if s.NT() != len(times) {
		return nil, fmt.Errorf("%d bands for a %d-step time axis", s.NT(), len(times))
	}
	c := s.Clone()
	c.Times = append([]domain.Date(nil), times...)
	return c, nil
}

func (m *memStore) put(path string, s *domain.Series) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[path] = s
}

// stubWarper plants a canned warped grid in the store instead of
// shelling out.
type stubWarper struct {
	store *memStore
	grid  func() *domain.Series
}

func (w *stubWarper) Warp(_ context.Context, _, _, dstPath string) error {
	w.store.put(dstPath, w.grid())
	return nil
}

// rawModelSeries is a small 360-day rotated-pole-style input.
func rawModelSeries(startYear int) *domain.Series {
	times := domain.DateRange(domain.Cal360, domain.Date{Year: startYear, Month: 12, Day: 1}, 360)
	s := domain.NewSeries("tasmax", domain.Cal360, times,
		[]float64{0, 1}, []float64{0, 1}, 2200, "rotated-pole")
	for i := range s.Values {
		s.Values[i] = 1
	}
	return s
}

// warpedSeries is what the warp round trip hands back: target-aligned
// coordinates generously covering the glasgow region, 360 time steps.
func warpedSeries() *domain.Series {
	x := make([]float64, 0, 24)
	for i := 196; i < 220; i++ {
		x = append(x, domain.TargetExtent.XMin+domain.TargetResolution/2+float64(i)*domain.TargetResolution)
	}
	y := make([]float64, 0, 24)
	for j := 380; j < 404; j++ {
		y = append(y, domain.TargetExtent.YMin+domain.TargetResolution/2+float64(j)*domain.TargetResolution)
	}
	times := domain.DateRange(domain.CalStandard, domain.Date{Year: 2000, Month: 1, Day: 1}, 360)
	s := domain.NewSeries("data", domain.CalStandard, times, y, x, domain.TargetResolution, "")
	for i := range s.Values {
		s.Values[i] = 5
	}
	return s
}

func cpmFileName(run string, startYear int) string {
	return fmt.Sprintf("tasmax_rcp85_land-cpm_uk_2.2km_%s_day_%d1201-%d1130.nc", run, startYear, startYear+1)
}

// testTree creates the on-disk input population and the in-memory
// series behind it.
type testTree struct {
	inRoot, outRoot, cropRoot string
	store                     *memStore
}

func makeTree(t *testing.T, runs []string, startYears []int) testTree {
	t.Helper()
	dir := t.TempDir()
	tree := testTree{
		inRoot:   filepath.Join(dir, "in"),
		outRoot:  filepath.Join(dir, "out"),
		cropRoot: filepath.Join(dir, "crop"),
		store:    newMemStore(),
	}
	for _, run := range runs {
		inDir := filepath.Join(tree.inRoot, "tasmax", run)
		require.NoError(t, os.MkdirAll(inDir, 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(tree.outRoot, "tasmax", run), 0o755))
		for _, year := range startYears {
			name := cpmFileName(run, year)
			path := filepath.Join(inDir, name)
			require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
			tree.store.put(path, rawModelSeries(year))
		}
	}
	return tree
}

func (tr testTree) config(runs []string) Config {
	return Config{
		Source:     domain.SourceCPM,
		InputRoot:  tr.inRoot,
		OutputRoot: tr.outRoot,
		Variables:  []string{"tasmax"},
		Runs:       runs,
		Workers:    1,
	}
}

func (tr testTree) manager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, tr.store, &stubWarper{store: tr.store, grid: warpedSeries},
		zerolog.Nop(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return m
}

func TestDescriptorsOrder(t *testing.T) {
	tree := makeTree(t, []string{"05", "06"}, []int{1982, 1980, 1981})
	// Noise that enumeration must ignore.
	require.NoError(t, os.WriteFile(filepath.Join(tree.inRoot, "tasmax", "05", "README.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tree.inRoot, "tasmax", "05", "broken_name.nc"), []byte("x"), 0o644))

	m := tree.manager(t, tree.config([]string{"05", "06"}))
	var descs []Descriptor
	for d := range m.Descriptors() {
		descs = append(descs, d)
	}
	require.Len(t, descs, 6)

	// Sub-paths in table order, files chronological within each.
	assert.Equal(t, "05", descs[0].Sub.Run)
	assert.Equal(t, "06", descs[3].Sub.Run)
	for i, year := range []int{1980, 1981, 1982} {
		assert.Equal(t, domain.Date{Year: year, Month: 12, Day: 1}, descs[i].Source.Start)
		assert.Equal(t, i, descs[i].Index)
	}
	assert.Equal(t,
		filepath.Join(tree.outRoot, "tasmax", "05", "tasmax_rcp85_land-cpm_uk_2.2km_05_day-std-year_19801201-19811130.nc"),
		descs[0].OutputPath)
}

func TestDescriptorsWindows(t *testing.T) {
	tree := makeTree(t, []string{"05", "06"}, []int{1980, 1981, 1982})

	cfg := tree.config([]string{"05", "06"})
	cfg.Start, cfg.Stop = 1, 2       // second sub-path only
	cfg.JobStart, cfg.JobStop = 1, 3 // drop each sub-path's first file

	m := tree.manager(t, cfg)
	var descs []Descriptor
	for d := range m.Descriptors() {
		descs = append(descs, d)
	}
	require.Len(t, descs, 2)
	for i, d := range descs {
		assert.Equal(t, "06", d.Sub.Run)
		assert.Equal(t, 1+i, d.Index)
	}
	assert.Equal(t, domain.Date{Year: 1981, Month: 12, Day: 1}, descs[0].Source.Start)
}

func TestNewManagerValidatesInputDirs(t *testing.T) {
	tree := makeTree(t, []string{"05"}, []int{1980})

	// Run 07 was never created.
	cfg := tree.config([]string{"05", "07"})
	_, err := NewManager(cfg, tree.store, &stubWarper{store: tree.store, grid: warpedSeries},
		zerolog.Nop(), observability.NewMetricsForTesting())
	assert.Error(t, err)

	cfg.BestEffort = true
	m := tree.manager(t, cfg)
	require.Len(t, m.SubPaths(), 1)
	assert.Equal(t, "05", m.SubPaths()[0].Run)
}

func TestRunConvertWritesAndResumes(t *testing.T) {
	tree := makeTree(t, []string{"05"}, []int{1980, 1981, 1982})
	m := tree.manager(t, tree.config([]string{"05"}))

	results, err := m.RunConvert(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, convert.StatusWritten, r.Result.Status)
		assert.Equal(t, i, r.Descriptor.Index, "results out of descriptor order")
	}

	// The written series is on the real calendar.
	out, err := tree.store.Read(results[0].Descriptor.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 365, out.NT())
	assert.Equal(t, domain.CalStandard, out.Calendar)

	p := m.Progress()
	assert.Equal(t, int64(3), p.Total)
	assert.Equal(t, int64(3), p.Done)
	assert.Zero(t, p.Failed)

	// A rerun redoes nothing.
	results, err = m.RunConvert(context.Background())
	require.NoError(t, err)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, convert.StatusOutputExists, r.Result.Status)
	}
	assert.Equal(t, int64(3), m.Progress().Skipped)
}

func TestRunConvertPerFileFailureIsNotFatal(t *testing.T) {
	tree := makeTree(t, []string{"05"}, []int{1980, 1981})
	// Orphan the second file: present on disk, unreadable as a series.
	tree.store.mu.Lock()
	delete(tree.store.series, filepath.Join(tree.inRoot, "tasmax", "05", cpmFileName("05", 1981)))
	tree.store.mu.Unlock()

	m := tree.manager(t, tree.config([]string{"05"}))
	results, err := m.RunConvert(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, convert.StatusWritten, results[0].Result.Status)
	assert.Error(t, results[1].Err)
	assert.Equal(t, int64(1), m.Progress().Failed)
}

func TestRunConvertParallel(t *testing.T) {
	tree := makeTree(t, []string{"05", "06"}, []int{1980, 1981})
	cfg := tree.config([]string{"05", "06"})
	cfg.Workers = 2

	m := tree.manager(t, cfg)
	results, err := m.RunConvert(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, convert.StatusWritten, r.Result.Status)
		// Completion order may vary; result order must not.
		assert.Equal(t, []string{"05", "05", "06", "06"}[i], r.Descriptor.Sub.Run)
		assert.Equal(t, i%2, r.Descriptor.Index)
	}
}

func TestRunConvertObservationalNeedsReferenceGrid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "in", "tasmax"), 0o755))
	cfg := Config{
		Source:     domain.SourceHADS,
		InputRoot:  filepath.Join(dir, "in"),
		OutputRoot: filepath.Join(dir, "out"),
		Variables:  []string{"tasmax"},
		Workers:    1,
	}
	store := newMemStore()
	m, err := NewManager(cfg, store, &stubWarper{store: store, grid: warpedSeries},
		zerolog.Nop(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	_, err = m.RunConvert(context.Background())
	assert.ErrorContains(t, err, "reference grid")
}

func TestRunCropRequiresConvertedFiles(t *testing.T) {
	tree := makeTree(t, []string{"05"}, []int{1980})
	cfg := tree.config([]string{"05"})
	cfg.CropRoot = tree.cropRoot
	cfg.Regions = []string{"glasgow"}

	m := tree.manager(t, cfg)
	_, err := m.RunCrop(context.Background())
	assert.ErrorContains(t, err, "conversion pass")
}

func TestRunCropAutoSync(t *testing.T) {
	tree := makeTree(t, []string{"05"}, []int{1980, 1981})
	cfg := tree.config([]string{"05"})
	cfg.CropRoot = tree.cropRoot
	cfg.Regions = []string{"glasgow"}
	cfg.AutoSync = true

	m := tree.manager(t, cfg)
	results, err := m.RunCrop(context.Background())
	require.NoError(t, err)
	// Two converted files times one region.
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, convert.StatusWritten, r.Result.Status)
	}

	// One file per region subdirectory, named by the crop convention.
	path := filepath.Join(tree.cropRoot, "glasgow", "crop_glasgow_tasmax_cpm_05_19801201-19811130.nc")
	cropped, err := tree.store.Read(path)
	require.NoError(t, err)
	region, _ := domain.RegionByName("glasgow")
	assert.Equal(t, region.Cols, cropped.NX())
	assert.Equal(t, region.Rows, cropped.NY())
	assert.Equal(t, 365, cropped.NT())

	// A rerun skips every pair.
	results, err = m.RunCrop(context.Background())
	require.NoError(t, err)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, convert.StatusOutputExists, r.Result.Status)
	}
}

func TestRunCropUnknownRegion(t *testing.T) {
	tree := makeTree(t, []string{"05"}, []int{1980})
	cfg := tree.config([]string{"05"})
	cfg.CropRoot = tree.cropRoot
	cfg.Regions = []string{"atlantis"}

	m := tree.manager(t, cfg)
	_, err := m.RunCrop(context.Background())
	assert.ErrorContains(t, err, "unknown region")
}
