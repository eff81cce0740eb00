package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/api"
	"github.com/gcbaptista/go-search-pipeline/config"
	"github.com/gcbaptista/go-search-pipeline/internal/logging"
	"github.com/gcbaptista/go-search-pipeline/internal/metrics"
	"github.com/gcbaptista/go-search-pipeline/internal/pipeline"
	"github.com/gcbaptista/go-search-pipeline/model"
)

const version = "1.0.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "search-pipeline",
		Usage:   "Search request pipelines with neural sparse two-phase rewriting",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the search pipeline HTTP service",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the YAML configuration file",
						EnvVars: []string{config.EnvPrefix + "CONFIG"},
					},
					&cli.IntFlag{
						Name:  "port",
						Usage: "Port to run the server on (overrides the configuration)",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Directory to store pipeline definitions (overrides the configuration)",
					},
				},
			},
			{
				Name:   "transform",
				Usage:  "Rewrite one search request offline and print it as JSON",
				Action: transformCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "pipeline",
						Aliases:  []string{"p"},
						Usage:    "Pipeline definition file (YAML or JSON)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Pipeline to use when the file defines several",
					},
					&cli.StringFlag{
						Name:    "request",
						Aliases: []string{"r"},
						Usage:   "Search request file, - for stdin",
						Value:   "-",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "Set logging level (debug, info, warn, error)",
						Value: "warn",
					},
				},
			},
			{
				Name:   "validate",
				Usage:  "Build every pipeline of a definition file and report configuration errors",
				Action: validateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "pipeline",
						Aliases:  []string{"p"},
						Usage:    "Pipeline definition file (YAML or JSON)",
						Required: true,
					},
				},
			},
		},
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := config.LoadServerConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("data-dir") {
		cfg.Storage.DataDir = c.String("data-dir")
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %v", problems)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promRegistry, logger)

	registry, err := pipeline.NewRegistry(store, pipeline.Options{
		Dependencies: pipeline.Dependencies{
			Logger:   logger,
			Observer: collector,
			Recorder: collector,
		},
		Workers: cfg.Batch.Workers,
	})
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Error("Failed to close pipeline registry", zap.Error(err))
		}
	}()

	if path := cfg.Bootstrap.PipelinesFile; path != "" {
		if err := pipeline.Bootstrap(c.Context, registry, path, logger); err != nil {
			return err
		}
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, registry, api.Options{
		Logger:           logger,
		Metrics:          collector,
		Gatherer:         promRegistry,
		MaxRequestBytes:  cfg.Server.MaxRequestBytes,
		MaxBatchRequests: cfg.Batch.MaxRequests,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.Int("pipelines", len(registry.List())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func openStore(cfg config.StorageSettings, logger *zap.Logger) (pipeline.Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return pipeline.NewMemoryStore(), nil
	case config.StorageBadger:
		return pipeline.OpenBadgerStore(cfg.DataDir, logger)
	case config.StorageGob:
		return pipeline.NewGobStore(cfg.DataDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver '%s'", cfg.Driver)
	}
}

func transformCommand(c *cli.Context) error {
	logger, err := logging.New(config.LogConfig{Level: c.String("log-level"), Format: config.LogFormatConsole})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	def, err := selectDefinition(c.String("pipeline"), c.String("name"))
	if err != nil {
		return err
	}

	data, err := readRequest(c.String("request"), c.App.Reader)
	if err != nil {
		return err
	}
	req, err := model.ParseSearchRequest(data)
	if err != nil {
		return fmt.Errorf("failed to parse search request: %w", err)
	}

	p, err := pipeline.Build(pipelineName(def), def, pipeline.NewFactories(), pipeline.Dependencies{Logger: logger})
	if err != nil {
		return err
	}
	out, err := p.Process(c.Context, req)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode search request: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, string(encoded))
	return err
}

func validateCommand(c *cli.Context) error {
	path := c.String("pipeline")
	defs, err := pipeline.LoadDefinitionsFile(path)
	if err != nil {
		return err
	}

	failed := 0
	factories := pipeline.NewFactories()
	for _, def := range defs {
		name := pipelineName(def)
		p, err := pipeline.Build(name, def, factories, pipeline.Dependencies{})
		if err != nil {
			failed++
			fmt.Fprintf(c.App.Writer, "pipeline %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(c.App.Writer, "pipeline %s: ok (%d processors)\n", name, len(p.Processors()))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pipelines in %s are invalid", failed, len(defs), path)
	}
	return nil
}

// selectDefinition picks the pipeline named name from the file, or its only pipeline.
func selectDefinition(path, name string) (model.PipelineDefinition, error) {
	defs, err := pipeline.LoadDefinitionsFile(path)
	if err != nil {
		return model.PipelineDefinition{}, err
	}
	if name == "" {
		if len(defs) != 1 {
			return model.PipelineDefinition{}, fmt.Errorf("%s defines %d pipelines, pick one with --name", path, len(defs))
		}
		return defs[0], nil
	}
	for _, def := range defs {
		if def.Name == name {
			return def, nil
		}
	}
	return model.PipelineDefinition{}, fmt.Errorf("pipeline '%s' is not defined in %s", name, path)
}

func pipelineName(def model.PipelineDefinition) string {
	if def.Name == "" {
		return "cli"
	}
	return def.Name
}

func readRequest(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read search request from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search request: %w", err)
	}
	return data, nil
}
