package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/containergeometry/internal/controllers/restserver"
	"github.com/chrissnell/containergeometry/internal/geometry"
	"github.com/chrissnell/containergeometry/internal/loader"
	"github.com/chrissnell/containergeometry/internal/log"
	"github.com/chrissnell/containergeometry/internal/plotting"
	"github.com/chrissnell/containergeometry/internal/storage"
	"github.com/chrissnell/containergeometry/internal/storage/sqlite"
	"github.com/chrissnell/containergeometry/internal/storage/timescaledb"
	"github.com/chrissnell/containergeometry/pkg/config"
)

// ErrNothingToDo is returned when neither an input file nor the server was requested
var ErrNothingToDo = errors.New("no input file given and server not requested")

const healthCheckInterval = 30 * time.Second

// Options are the command line settings that override the configuration
type Options struct {
	Input      string
	DBPath     string
	PlotDir    string
	PlotFormat string
	Serve      bool
	ListenAddr string
	Port       int
}

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	opts   Options
	logger *zap.SugaredLogger
	out    io.Writer
}

// New creates a new application instance
func New(cfg *config.ConfigData, opts Options, logger *zap.SugaredLogger) *App {
	if cfg == nil {
		cfg = &config.ConfigData{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.PlotFormat == "" {
		opts.PlotFormat = "png"
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		out:    os.Stdout,
	}
}

// SetOutput redirects the analysis report, which goes to stdout by default
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// Run analyzes the input file if one was given and then, if requested, serves
// the REST API until a shutdown signal arrives or ctx ends
func (a *App) Run(ctx context.Context) error {
	if a.opts.Input == "" && !a.opts.Serve {
		return ErrNothingToDo
	}

	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	params, err := a.cfg.Analysis.ToParams()
	if err != nil {
		return fmt.Errorf("invalid analysis configuration: %w", err)
	}
	analyzer, err := geometry.NewAnalyzer(params, log.Named("geometry"))
	if err != nil {
		return err
	}

	store, backend, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	if a.opts.Input != "" {
		if _, err := a.AnalyzeFile(ctx, analyzer, store, a.opts.Input); err != nil {
			return err
		}
	}

	if !a.opts.Serve {
		return nil
	}

	health := storage.NewHealthManager()
	if store != nil {
		health.StartHealthMonitor(ctx, &wg, backend, store, healthCheckInterval, log.Named("health"))
	}

	var sc config.ServerData
	if a.cfg.Server != nil {
		sc = *a.cfg.Server
	}
	if a.opts.ListenAddr != "" {
		sc.ListenAddr = a.opts.ListenAddr
	}
	if a.opts.Port != 0 {
		sc.Port = a.opts.Port
	}

	ctrl, err := restserver.NewController(ctx, &wg, sc, restserver.Options{
		Analyzer:    analyzer,
		Store:       store,
		Health:      health,
		VolumeScale: a.cfg.Analysis.GetVolumeScale(),
	}, log.Named("restserver"))
	if err != nil {
		return fmt.Errorf("could not create REST server: %w", err)
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// openStore returns the run store selected by the -db flag or the storage
// configuration, or nil when none is configured
func (a *App) openStore(ctx context.Context) (storage.RunStore, string, error) {
	path := a.opts.DBPath
	if path == "" && a.cfg.Storage.SQLite != nil {
		path = a.cfg.Storage.SQLite.Path
	}
	if path != "" {
		s, err := sqlite.New(path, log.Named("sqlite"))
		if err != nil {
			return nil, "", fmt.Errorf("could not open run database %s: %w", path, err)
		}
		return s, "sqlite", nil
	}

	if ts := a.cfg.Storage.TimescaleDB; ts != nil && ts.ConnectionString != "" {
		s, err := timescaledb.New(ctx, ts.ConnectionString, log.Named("timescaledb"))
		if err != nil {
			return nil, "", fmt.Errorf("could not connect to TimescaleDB: %w", err)
		}
		return s, "timescaledb", nil
	}

	return nil, "", nil
}

// AnalyzeFile loads a CSV file, analyzes it, stores the run when store is not
// nil, writes the charts when a plot directory is set and prints the report
func (a *App) AnalyzeFile(ctx context.Context, analyzer *geometry.Analyzer, store storage.RunStore, path string) (*storage.Run, error) {
	ms, err := loader.Load(path, loader.Options{VolumeScale: a.cfg.Analysis.GetVolumeScale()})
	if err != nil {
		return nil, err
	}
	a.logger.Infof("loaded %d measurements from %s", len(ms), path)

	res, err := analyzer.Analyze(ms)
	if err != nil {
		return nil, fmt.Errorf("analysis of %s failed: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	run := storage.NewRun(name, analyzer.Params(), ms, res)

	if store != nil {
		if err := store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("could not store run: %w", err)
		}
		a.logger.Infof("stored run %s", run.ID)
	}

	if a.opts.PlotDir != "" {
		files, err := plotting.SaveAll(a.opts.PlotDir, a.opts.PlotFormat, name, ms, res)
		if err != nil {
			return nil, fmt.Errorf("could not write charts: %w", err)
		}
		for _, f := range files {
			a.logger.Infof("wrote %s", f)
		}
	}

	if err := WriteReport(a.out, run, store != nil); err != nil {
		return nil, err
	}
	return run, nil
}

// WriteReport prints the segment table and the volume check of a run
func WriteReport(w io.Writer, run *storage.Run, stored bool) error {
	res := run.Result
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Run:\t%s\n", run.Name)
	if stored {
		fmt.Fprintf(tw, "ID:\t%s\n", run.ID)
	}
	fmt.Fprintf(tw, "Data points:\t%d\n", res.Stats.DataPoints)
	fmt.Fprintf(tw, "Strategy:\t%s\n", res.Strategy)
	if res.StabilityFallback {
		fmt.Fprintf(tw, "\t(stability detector found nothing, fell back)\n")
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "#\tShape\tStart\tEnd\tParameters\tError %")
	for i, s := range res.Segments {
		kind := s.Shape.Kind.String()
		if s.FallbackUsed {
			kind += "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%s\t%.3f\n",
			i+1, kind, s.StartHeight, s.EndHeight, formatValues(s.Shape.Values()), s.ErrorPct)
	}
	fmt.Fprintln(tw)

	vc := res.Volume
	status := "OK"
	if !vc.Valid {
		status = "MISMATCH"
	}
	fmt.Fprintf(tw, "Measured volume:\t%.2f\n", vc.Measured)
	fmt.Fprintf(tw, "Reconstructed volume:\t%.2f\n", vc.Reconstructed)
	fmt.Fprintf(tw, "Volume error:\t%.3f%% (tolerance %.2f%%) %s\n", vc.ErrorPct, vc.TolerancePct, status)

	for _, warn := range res.Warnings {
		fmt.Fprintf(tw, "Warning:\t%s\n", warn)
	}
	return tw.Flush()
}

func formatValues(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.3f", x)
	}
	return strings.Join(parts, ", ")
}
