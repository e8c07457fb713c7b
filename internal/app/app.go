package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"foodpulse/internal/config"
	"foodpulse/internal/etl"
	"foodpulse/internal/exporter"
	"foodpulse/internal/infrastructure"
	"foodpulse/internal/pipeline"
	"foodpulse/internal/services"
	"foodpulse/internal/sources"
	transport "foodpulse/internal/transport/http"
	"foodpulse/internal/websocket"
)

const jobQueueDepth = 4

// Options tunes how the application is assembled
type Options struct {
	// NoTelemetry skips exporter setup; the CLI batch commands use it
	NoTelemetry bool
	// ContinueOnError keeps running independent stages after a failure
	ContinueOnError bool
	// Sources replaces the configured sources
	Sources *sources.Sources
}

// Application wires configuration, the pipeline and the HTTP API together
type Application struct {
	Config    *config.Config
	Paths     *config.Paths
	Logger    *slog.Logger
	Telemetry *infrastructure.Telemetry

	Sources sources.Sources
	CSV     *exporter.CSVWriter

	Manager   *pipeline.Manager
	JobQueue  *pipeline.JobQueue
	Analytics *services.AnalyticsService
	Pipeline  *services.PipelineService
	Health    *services.HealthService
	Hub       *websocket.Hub

	Router http.Handler
	Server *http.Server

	closeSources func() error
}

// New builds an application from cfg. Nothing is started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	paths, err := config.GetPaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	a := &Application{
		Config:       cfg,
		Paths:        paths,
		Logger:       logger,
		closeSources: func() error { return nil },
	}

	if !opts.NoTelemetry {
		a.Telemetry, err = infrastructure.InitializeTelemetry(ctx, cfg.Telemetry, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	srcs := opts.Sources
	if srcs == nil {
		configured, closeFn, err := sources.FromConfig(ctx, paths, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure sources: %w", err)
		}
		srcs = &configured
		a.closeSources = closeFn
	}

	a.Sources = *srcs
	a.CSV = exporter.NewCSVWriter(paths, logger)

	defaults := TransformDefaults(cfg.Analytics)
	tracer := pipeline.NewTracer(a.Telemetry)

	registry := pipeline.NewRegistry()
	err = pipeline.RegisterStages(registry, pipeline.Deps{
		Sources:    a.Sources,
		CSV:        a.CSV,
		Workbook:   exporter.NewWorkbookWriter(paths, logger),
		OutputPath: paths.AnalyticsFile,
		ReportPath: paths.ReportFile,
		Merge:      etl.DefaultOptions(),
		Forecast:   defaults.Forecast,
		Segment:    defaults.Segment,
		Explain:    defaults.Explain,
		Insights:   defaults.Insights,
		Tracer:     tracer,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register stages: %w", err)
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.ContinueOnError = opts.ContinueOnError
	a.Manager = pipeline.NewManager(registry, pcfg, tracer, logger)
	a.Hub = websocket.NewHub(logger)
	a.Manager.SetNotifier(a.Hub)
	a.JobQueue = pipeline.NewJobQueue(jobQueueDepth, pipeline.NewMemoryJobStore(), a.Manager, logger)

	a.Analytics = services.NewAnalyticsService(paths.AnalyticsFile, defaults, logger)
	a.Pipeline = services.NewPipelineService(a.Manager, a.JobQueue, a.Analytics, logger)
	a.Health = services.NewHealthService(config.AppVersion, paths.DataDir, a.Analytics, a.Manager, logger)

	a.Router = transport.NewRouter(transport.RouterOptions{
		Server:    cfg.Server,
		Telemetry: a.Telemetry,
		Logger:    logger,
		Analytics: a.Analytics,
		Pipeline:  a.Pipeline,
		Health:    a.Health,

		PipelineStream: websocket.NewHandler(a.Hub, cfg.Server.AllowedOrigins, logger),
	})
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

// TransformDefaults maps the analytics configuration onto transform options
func TransformDefaults(cfg config.AnalyticsConfig) services.Defaults {
	d := services.DefaultDefaults()

	d.Forecast.Periods = cfg.ForecastPeriods
	d.Forecast.IntervalWidth = cfg.ForecastInterval
	d.Forecast.DateLayout = cfg.OrderDateLayout

	d.Segment.Clusters = cfg.SegmentCount
	d.Segment.Seed = cfg.SegmentSeed

	d.Explain.Trees = cfg.ExplainTrees
	d.Explain.Seed = cfg.ExplainSeed
	d.Explain.Target = cfg.ExplainTarget
	d.Explain.BackgroundSize = cfg.ExplainBackground
	if len(cfg.ExplainFeatures) > 0 {
		d.Explain.Features = cfg.ExplainFeatures
	}

	d.Insights.DateLayout = cfg.OrderDateLayout
	return d
}

// RunPipeline runs the stages synchronously and returns the run state. The
// state is non-nil whenever the run started.
func (a *Application) RunPipeline(ctx context.Context, stages []string) (*pipeline.State, error) {
	return a.Manager.Run(ctx, pipeline.RunRequest{Stages: stages})
}

// BuildAnalytics loads and merges the sources and writes the analytics
// table, without the analysis stages
func (a *Application) BuildAnalytics(ctx context.Context) (*etl.Result, error) {
	opts := etl.DefaultOptions()
	opts.Logger = a.Logger
	return etl.Build(ctx, a.Sources, a.CSV, a.Paths.AnalyticsFile, opts)
}

// Serve loads the last analytics table, starts the job queue and serves HTTP
// until ctx ends. Shutdown waits up to the configured shutdown timeout.
func (a *Application) Serve(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("output_dir", a.Paths.OutputDir))

	if err := a.Analytics.Load(ctx); err != nil {
		a.Logger.WarnContext(ctx, "No analytics table yet; run the pipeline to build one",
			slog.String("path", a.Paths.AnalyticsFile),
			slog.String("error", err.Error()))
	}

	a.Hub.Start()
	defer a.Hub.Stop()
	a.JobQueue.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.Logger.InfoContext(ctx, "Shutting down application")
	if stopErr := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); stopErr != nil {
		a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", stopErr.Error()))
	}
	return err
}

// Close releases sources and flushes telemetry
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if err := a.closeSources(); err != nil {
		errs = append(errs, fmt.Errorf("close sources: %w", err))
	}
	if a.Telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
