package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"featurecore/internal/config"
	"featurecore/internal/core"
	"featurecore/internal/ctxlog"
	"featurecore/internal/tracing"
)

// session holds everything one command needs: the parsed configuration,
// the opened registry and the observability sinks.
type session struct {
	cfg     config.Config
	service *core.Service
	prom    *core.PrometheusRecorder
	expvar  *core.ExpvarMetricsRecorder
	traces  *tracing.Provider
	logger  *slog.Logger
}

func openSession(ctx context.Context, opts *globalOptions, stderr io.Writer) (context.Context, *session, error) {
	logger := ctxlog.New(opts.logLevel, opts.logFormat, stderr)
	ctx = ctxlog.WithLogger(ctx, logger)

	cfg, err := config.Load(opts.chdir, opts.configFile)
	if err != nil {
		return ctx, nil, err
	}
	logger.Debug("loaded configuration", "path", cfg.Path, "project", cfg.Project, "registry", cfg.Registry.Path)

	storage, err := cfg.StorageOptions()
	if err != nil {
		return ctx, nil, fmt.Errorf("registry: %w", err)
	}
	traces, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return ctx, nil, fmt.Errorf("tracing: %w", err)
	}
	store, err := core.OpenRegistryStore(ctx, storage, nil)
	if err != nil {
		_ = traces.Shutdown(ctx)
		return ctx, nil, err
	}
	logger.Debug("opened registry", "driver", storage.Driver)

	s := &session{
		cfg:    cfg,
		prom:   core.NewPrometheusRecorder(),
		expvar: core.NewExpvarMetricsRecorder(""),
		traces: traces,
		logger: logger,
	}
	s.service = core.NewService(store,
		core.WithSnapshotCache(cfg.Registry.CacheTTL()),
		core.WithMetricsRecorder(core.MultiRecorder{s.prom, s.expvar}),
		core.WithTracer(traces.Tracer()),
	)
	return ctx, s, nil
}

// close flushes metrics and spans and releases the registry.
func (s *session) close(ctx context.Context) error {
	var errs []error
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := s.prom.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	for _, op := range s.expvar.Operations() {
		st := s.expvar.Snapshot().Operations[op]
		s.logger.Debug("operation stats", "operation", op, "success", st.Success, "errors", st.Errors, "total_ms", st.TotalMS)
	}
	if err := s.traces.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	if err := s.service.Store().Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}
	return errors.Join(errs...)
}
