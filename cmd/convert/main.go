// Command convert drives the calendar/grid conversion pass over a raw
// file population.
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
	httpmon "github.com/ukclimate/gridalign/internal/http"
	"github.com/ukclimate/gridalign/internal/observability"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML batch configuration")
	source := flag.String("source", "", "Source type: cpm or hads")
	inputRoot := flag.String("input", "", "Parent input path, expanded per variable[/run]")
	outputRoot := flag.String("output", "", "Parent output path")
	refGrid := flag.String("ref-grid", "", "Reference grid NetCDF (required for hads)")
	variables := flag.String("variables", "", "Comma-separated variable list")
	runs := flag.String("runs", "", "Comma-separated model run identifiers")
	start := flag.Int("start", 0, "Outer window start over variable/run sub-paths")
	stop := flag.Int("stop", 0, "Outer window stop (0 = end)")
	jobStart := flag.Int("job-start", 0, "Inner window start over each sub-path's files")
	jobStop := flag.Int("job-stop", 0, "Inner window stop (0 = end)")
	workers := flag.Int("workers", 0, "Worker pool size (0 = cores-1)")
	bestEffort := flag.Bool("best-effort", false, "Drop missing input sub-paths instead of failing")
	monitorAddr := flag.String("monitor", "", "Monitor listen address, e.g. :8080 (empty = disabled)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridalign convert version %s\n", version)
		return
	}

	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	applyFlags(cfg, *source, *inputRoot, *outputRoot, *refGrid, *variables, *runs, *monitorAddr)
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
		Variables:   cfg.Variables,
		Runs:        cfg.Runs,
		Start:       pick(*start, cfg.Start),
		Stop:        pick(*stop, cfg.Stop),
		JobStart:    pick(*jobStart, cfg.JobStart),
		JobStop:     pick(*jobStop, cfg.JobStop),
		Workers:     cfg.Workers,
		BestEffort:  *bestEffort || cfg.BestEffort,
		MaxGapDays:  cfg.MaxGapDays,
		RefGridPath: cfg.RefGrid,
	}, ncgrid.FileStore{}, &raster.GDAL{}, log.Logger, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("batch configuration rejected")
	}

	if cfg.MonitorAddr != "" {
		router := httpmon.SetupRouter(mgr)
		go func() {
			if err := router.Run(cfg.MonitorAddr); err != nil {
				log.Error().Err(err).Msg("monitor server stopped")
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results, err := mgr.RunConvert(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("batch run aborted")
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
		Msg("conversion pass finished")
	if failed > 0 && written == 0 && skipped == 0 {
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, source, inputRoot, outputRoot, refGrid, variables, runs, monitorAddr string) {
	if source != "" {
		cfg.Source = source
	}
	if inputRoot != "" {
		cfg.InputRoot = inputRoot
	}
	if outputRoot != "" {
		cfg.OutputRoot = outputRoot
	}
	if refGrid != "" {
		cfg.RefGrid = refGrid
	}
	if variables != "" {
		cfg.Variables = splitCSV(variables)
	}
	if runs != "" {
		cfg.Runs = splitCSV(runs)
	}
	if monitorAddr != "" {
		cfg.MonitorAddr = monitorAddr
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

func pick(flagVal, cfgVal int) int {
	if flagVal != 0 {
		return flagVal
	}
	return cfgVal
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
