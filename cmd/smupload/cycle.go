package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/smupload/internal/config"
	"github.com/efebarandurmaz/smupload/internal/host"
	"github.com/efebarandurmaz/smupload/internal/observability"
	"github.com/efebarandurmaz/smupload/internal/options"
	"github.com/efebarandurmaz/smupload/internal/plugin"
	"github.com/efebarandurmaz/smupload/internal/report"
	"github.com/efebarandurmaz/smupload/internal/secrets"
	"github.com/efebarandurmaz/smupload/internal/server"
	"github.com/efebarandurmaz/smupload/internal/upload"
)

// errBuildFailed is returned when the compilation ends with errors.
var errBuildFailed = errors.New("source map upload reported errors")

type session struct {
	cfg    *config.Config
	logger *slog.Logger
	tracer *observability.TracerProvider
}

func setup(ctx context.Context, cmd *cobra.Command, configPath string) (*session, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	slog.SetDefault(logger)

	if err := resolveAccessToken(ctx, cfg); err != nil {
		return nil, err
	}

	tracing := cfg.Tracing
	if tracing.ServiceVersion == "" {
		tracing.ServiceVersion = version
	}
	tracer, err := observability.InitTracing(ctx, &tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	return &session{cfg: cfg, logger: logger, tracer: tracer}, nil
}

// resolveAccessToken fills an empty access token from the configured secrets
// provider.
func resolveAccessToken(ctx context.Context, cfg *config.Config) error {
	mgr, err := secrets.NewManager(cfg.Secrets, nil)
	if err != nil {
		return fmt.Errorf("configuring secrets: %w", err)
	}
	cfg.AccessToken = mgr.ResolveAccessToken(ctx, cfg.AccessToken)
	return nil
}

// runCycle loads the compilation, fires after-emit through a host compiler and
// prints the report.
func (s *session) runCycle(ctx context.Context, f cycleFlags, out io.Writer) error {
	outputDir := f.outputDir
	if outputDir == "" {
		outputDir = filepath.Dir(f.statsPath)
	}

	osFs := afero.NewOsFs()
	comp, err := host.LoadCompilation(osFs, f.statsPath, afero.NewBasePathFs(osFs, outputDir))
	if err != nil {
		return err
	}

	opts := options.Normalize(s.cfg.Options)
	rep := report.New()
	p := plugin.New(s.cfg.Options,
		plugin.WithLogger(s.logger),
		plugin.WithClient(upload.NewClient(opts.Endpoint, upload.NewHTTPClient(s.cfg.Timeout))),
		plugin.WithResultHandler(rep.Collect),
	)

	compiler := host.NewCompiler()
	p.Apply(compiler)
	if err := compiler.Emit(ctx, plugin.EventAfterEmit, comp); err != nil {
		return err
	}
	rep.Finish(comp.Errors(), comp.Warnings())

	if f.jsonReport {
		data, err := rep.JSON()
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else if !s.cfg.Silent || len(comp.Errors()) > 0 {
		rep.PrintSummary(out)
	}

	if len(comp.Errors()) > 0 {
		return fmt.Errorf("%w: %d errors", errBuildFailed, len(comp.Errors()))
	}
	return nil
}

func runUpload(cmd *cobra.Command, f cycleFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := setup(ctx, cmd, f.configPath)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.tracer.Shutdown(shutdownCtx)
	}()

	return s.runCycle(ctx, f, cmd.OutOrStdout())
}

func runWatch(cmd *cobra.Command, f cycleFlags, debounce time.Duration) error {
	s, err := setup(context.Background(), cmd, f.configPath)
	if err != nil {
		return err
	}

	watcher, err := host.NewStatsWatcher(f.statsPath, debounce, s.logger)
	if err != nil {
		return err
	}

	cfg := server.DefaultShutdownConfig()
	cfg.Logger = s.logger
	shutdown := server.NewShutdownHandler(cfg)
	shutdown.Register(server.WatcherShutdownHook(watcher.Close))
	shutdown.Register(server.TracingShutdownHook(s.tracer.Shutdown))
	shutdown.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-shutdown.Stopping()
		cancel()
	}()

	s.logger.Info("Watching for compilations", "stats", f.statsPath)
	if _, statErr := os.Stat(f.statsPath); statErr == nil {
		if err := s.runCycle(ctx, f, cmd.OutOrStdout()); err != nil {
			s.logger.Error("Upload cycle failed", "error", err)
		}
	}

	runErr := watcher.Run(ctx, func(ctx context.Context) {
		if err := s.runCycle(ctx, f, cmd.OutOrStdout()); err != nil {
			s.logger.Error("Upload cycle failed", "error", err)
		}
	})

	shutdown.Shutdown()
	shutdown.Wait()
	return runErr
}

func runValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if err := resolveAccessToken(cmd.Context(), cfg); err != nil {
		return err
	}

	verrs := options.Validate(cfg.Options)
	for _, v := range verrs {
		fmt.Fprintln(cmd.OutOrStdout(), v.Error())
	}
	if len(verrs) > 0 {
		return fmt.Errorf("%d invalid options", len(verrs))
	}
	fmt.Fprintln(cmd.OutOrStdout(), "options are valid")
	return nil
}
