// Command crop clips converted grids to the named regions of the
// catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ukclimate/gridalign/internal/adapter/ncgrid"
	"github.com/ukclimate/gridalign/internal/adapter/raster"
	"github.com/ukclimate/gridalign/internal/batch"
	"github.com/ukclimate/gridalign/internal/config"
	"github.com/ukclimate/gridalign/internal/domain"
	"github.com/ukclimate/gridalign/internal/observability"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML batch configuration")
	source := flag.String("source", "", "Source type: cpm or hads")
	inputRoot := flag.String("input", "", "Parent input path of the raw population")
	outputRoot := flag.String("output", "", "Parent path holding converted files")
	cropRoot := flag.String("crop-output", "", "Parent path receiving cropped files")
	regions := flag.String("regions", "", "Comma-separated region names (default: whole catalog)")
	variables := flag.String("variables", "", "Comma-separated variable list")
	runs := flag.String("runs", "", "Comma-separated model run identifiers")
	workers := flag.Int("workers", 0, "Worker pool size (0 = cores-1)")
	autoSync := flag.Bool("auto-sync", false, "Run the conversion pass first if no converted files exist")
	listRegions := flag.Bool("list-regions", false, "Print the region catalog and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridalign crop version %s\n", version)
		return
	}
	if *listRegions {
		for _, name := range domain.RegionNames() {
			r, _ := domain.RegionByName(name)
			fmt.Printf("%-12s x: %.0f..%.0f  y: %.0f..%.0f  (%dx%d px)\n",
				r.Name, r.Box.XMin, r.Box.XMax, r.Box.YMin, r.Box.YMax, r.Cols, r.Rows)
		}
		return
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if *source != "" {
		cfg.Source = *source
	}
	if *inputRoot != "" {
		cfg.InputRoot = *inputRoot
	}
	if *outputRoot != "" {
		cfg.OutputRoot = *outputRoot
	}
	if *cropRoot != "" {
		cfg.CropRoot = *cropRoot
	}
	if *regions != "" {
		cfg.Regions = splitCSV(*regions)
	}
	if *variables != "" {
		cfg.Variables = splitCSV(*variables)
	}
	if *runs != "" {
		cfg.Runs = splitCSV(*runs)
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	setupLogging(cfg.LogLevel)

	sourceType, err := cfg.SourceType()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	metrics := observability.NewMetrics()
	mgr, err := batch.NewManager(batch.Config{
		Source:      sourceType,
		InputRoot:   cfg.InputRoot,
		OutputRoot:  cfg.OutputRoot,
		CropRoot:    cfg.CropRoot,
		Variables:   cfg.Variables,
		Runs:        cfg.Runs,
		Regions:     cfg.Regions,
		Workers:     cfg.Workers,
		BestEffort:  cfg.BestEffort,
		MaxGapDays:  cfg.MaxGapDays,
		RefGridPath: cfg.RefGrid,
		AutoSync:    *autoSync,
	}, ncgrid.FileStore{}, &raster.GDAL{}, log.Logger, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("batch configuration rejected")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results, err := mgr.RunCrop(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("crop run aborted")
	}

	var written, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Result.Skipped():
			skipped++
		default:
			written++
		}
	}
	log.Info().
		Int("written", written).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("crop pass finished")
	if failed > 0 && written == 0 && skipped == 0 {
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
