// Command assimilate runs the ensemble Kalman filter over a GeoJSON series
// of observed fire perimeters using a synthetic forward model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/firefront/internal/config"
	"github.com/banshee-data/firefront/internal/enkf"
	"github.com/banshee-data/firefront/internal/forward"
	"github.com/banshee-data/firefront/internal/observation"
	"github.com/banshee-data/firefront/internal/pipeline"
	"github.com/banshee-data/firefront/internal/runstore"
	"github.com/banshee-data/firefront/internal/units"
	"github.com/banshee-data/firefront/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to assimilation config JSON (defaults built in)")
	observations = flag.String("observations", "", "GeoJSON FeatureCollection of observed perimeters")
	seriesID     = flag.String("series", "", "Series to assimilate (default: the only series in the file)")
	steps        = flag.Int("steps", 0, "Maximum number of filter steps (0 = whole series)")
	dbPath       = flag.String("db", "", "SQLite database for run and step records (empty disables)")
	outDir       = flag.String("out", "", "Directory for plots, diagnostics and analysis GeoJSON (empty disables)")
	plotMembers  = flag.Bool("plot-members", false, "Draw every forecast member on the step plots")
	windWeighted = flag.Bool("wind-weighted", false, "Weight the initial position uncertainty by wind exposure")
	modelName    = flag.String("model", "drift", "Forward model: drift or translate")
	dx           = flag.Float64("dx", 0, "translate model: x offset per window (m)")
	dy           = flag.Float64("dy", 0, "translate model: y offset per window (m)")
	spreadRate   = flag.Float64("spread-rate", 0.01, "drift model: outward spread rate (m/s)")
	windFactor   = flag.Float64("wind-factor", 0.005, "drift model: fraction of wind speed advecting the perimeter")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("assimilate"))
		return
	}
	if *observations == "" {
		log.Fatal("-observations is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("assimilation failed: %v", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.EmptyAssimilationConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAssimilationConfig(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	src, err := observation.LoadGeoJSON(*observations, "default")
	if err != nil {
		return fmt.Errorf("failed to load observations: %w", err)
	}
	series, err := pickSeries(src.Series(), *seriesID)
	if err != nil {
		return err
	}

	model, err := buildModel(*modelName, *dx, *dy, *spreadRate, *windFactor)
	if err != nil {
		return err
	}

	filter, err := enkf.NewFilter(enkf.ConfigFromAssimilation(cfg))
	if err != nil {
		return fmt.Errorf("invalid filter configuration: %w", err)
	}

	var store *runstore.Store
	if *dbPath != "" {
		store, err = runstore.Open(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open run database: %w", err)
		}
		defer store.Close()
	}

	windPrior := enkf.WindPriorFromConfig(cfg)
	log.Print(describeWindPrior(windPrior, cfg.GetWindSpeedUnits()))

	runner, err := pipeline.NewRunner(filter, src, model, store, pipeline.Options{
		SeriesID:      series,
		MaxSteps:      *steps,
		Seed:          cfg.GetSeed(),
		PositionSigma: cfg.GetPositionSigma(),
		WindSigma:     cfg.GetWindSigma(),
		WindPrior:     windPrior,
		WindWeighted:  *windWeighted,
		RMSVertices:   cfg.GetRMSVertices(),
		OutputDir:     *outDir,
		PlotMembers:   *plotMembers,
	})
	if err != nil {
		return err
	}

	sum, err := runner.Run(ctx)
	if sum != nil {
		for _, s := range sum.Steps {
			fmt.Fprintf(os.Stdout, "step %d obs %d: rms=%.3f m area_diff=%.1f m2 centroid=%.3f m failed=%d\n",
				s.Index, s.Observation.Index, s.RMS, s.AreaDifference, s.CentroidDistance, len(s.Result.Failures))
		}
		if sum.RunID != "" {
			fmt.Fprintf(os.Stdout, "run %s\n", sum.RunID)
		}
	}
	return err
}

// pickSeries resolves the series to run: the requested one, or the only
// series present when none is requested.
func pickSeries(available []string, requested string) (string, error) {
	if requested != "" {
		for _, s := range available {
			if s == requested {
				return s, nil
			}
		}
		return "", fmt.Errorf("series %q not found (have %v)", requested, available)
	}
	if len(available) != 1 {
		return "", fmt.Errorf("-series is required when the file holds %d series %v", len(available), available)
	}
	return available[0], nil
}

// describeWindPrior reports the wind prior in the units it was configured in.
func describeWindPrior(p enkf.WindPrior, unit string) string {
	return fmt.Sprintf("wind prior %.1f ± %.1f %s towards %.0f ± %.0f deg",
		units.ConvertSpeed(p.SpeedMean, unit), units.ConvertSpeed(p.SpeedSigma, unit), unit,
		p.DirectionMean, p.DirectionSigma)
}

func buildModel(name string, dx, dy, spread, wind float64) (forward.Model, error) {
	switch name {
	case "translate":
		return forward.Translate{DX: dx, DY: dy}, nil
	case "drift":
		if spread < 0 || wind < 0 {
			return nil, fmt.Errorf("drift model rates must be non-negative")
		}
		return forward.WindDrift{SpreadRate: spread, WindFactor: wind}, nil
	default:
		return nil, fmt.Errorf("unknown forward model %q (want drift or translate)", name)
	}
}
