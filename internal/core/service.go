package core

import (
	"context"
	"time"

	"featurecore/internal/ctxlog"
	"featurecore/internal/loader"
)

// Service runs the reconciliation pipeline against one registry store:
// load, discover, validate, diff and apply.
type Service struct {
	store     RegistryStore
	loader    *loader.Loader
	validator *Validator
	cache     *SnapshotCache
	metrics   MetricsRecorder
	tracer    Tracer
}

// Option customises a Service.
type Option func(*Service)

// WithLoader overrides the declaration loader.
func WithLoader(l *loader.Loader) Option {
	return func(s *Service) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithMessages overrides the duplicate name messages.
func WithMessages(m Messages) Option {
	return func(s *Service) { s.validator = NewValidator(m) }
}

// WithSnapshotCache caches snapshots read by Snapshot and Plan for ttl.
func WithSnapshotCache(ttl time.Duration) Option {
	return func(s *Service) { s.cache = NewSnapshotCache(ttl) }
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store RegistryStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		loader:    loader.New(),
		validator: NewValidator(DefaultMessages()),
		cache:     NewSnapshotCache(0),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying registry store.
func (s *Service) Store() RegistryStore { return s.store }

func (s *Service) observe(ctx context.Context, operation string, fn func(context.Context, TraceSpan) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx, span)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	if err != nil {
		ctxlog.FromContext(ctx).Debug("operation failed", "operation", operation, "error", err)
	}
	return err
}

// Declare loads root and returns its validated declared set.
func (s *Service) Declare(ctx context.Context, root string) (*DeclaredSet, error) {
	var res loader.Result
	if err := s.observe(ctx, "load", func(ctx context.Context, span TraceSpan) error {
		var err error
		res, err = s.loader.Load(ctx, root)
		span.SetAttribute("files", len(res.Files))
		return err
	}); err != nil {
		return nil, err
	}
	var set *DeclaredSet
	_ = s.observe(ctx, "discover", func(ctx context.Context, span TraceSpan) error {
		set = Discover(ctx, res)
		span.SetAttribute("objects", set.Len())
		return nil
	})
	if err := s.observe(ctx, "validate", func(ctx context.Context, _ TraceSpan) error {
		return s.validator.Validate(ctx, set)
	}); err != nil {
		return nil, err
	}
	return set, nil
}

// Snapshot returns the stored state of project, served from the snapshot
// cache when enabled.
func (s *Service) Snapshot(ctx context.Context, project string) (Snapshot, error) {
	if snap, ok := s.cache.Get(project); ok {
		return snap, nil
	}
	snap, err := s.readSnapshot(ctx, project)
	if err != nil {
		return Snapshot{}, err
	}
	s.cache.Set(snap)
	return snap, nil
}

func (s *Service) readSnapshot(ctx context.Context, project string) (Snapshot, error) {
	var snap Snapshot
	err := s.observe(ctx, "read_snapshot", func(ctx context.Context, span TraceSpan) error {
		var err error
		snap, err = ReadSnapshot(ctx, s.store, project)
		span.SetAttribute("entries", snap.Len())
		return err
	})
	return snap, err
}

func (s *Service) diff(ctx context.Context, set *DeclaredSet, snap Snapshot) (Changeset, error) {
	var cs Changeset
	err := s.observe(ctx, "diff", func(ctx context.Context, span TraceSpan) error {
		var err error
		cs, err = Diff(ctx, set, snap)
		span.SetAttribute("changes", cs.Len())
		return err
	})
	return cs, err
}

// Plan computes the changeset apply would commit, without committing it.
func (s *Service) Plan(ctx context.Context, project, root string) (Changeset, error) {
	var cs Changeset
	err := s.observe(ctx, "plan", func(ctx context.Context, _ TraceSpan) error {
		set, err := s.Declare(ctx, root)
		if err != nil {
			return err
		}
		snap, err := s.Snapshot(ctx, project)
		if err != nil {
			return err
		}
		cs, err = s.diff(ctx, set, snap)
		return err
	})
	return cs, err
}

// Apply reconciles the registry of project with the definitions under
// root. The snapshot is always read from the store.
func (s *Service) Apply(ctx context.Context, project, root string) (AppliedSummary, error) {
	var summary AppliedSummary
	err := s.observe(ctx, "apply", func(ctx context.Context, span TraceSpan) error {
		set, err := s.Declare(ctx, root)
		if err != nil {
			return err
		}
		snap, err := s.readSnapshot(ctx, project)
		if err != nil {
			return err
		}
		cs, err := s.diff(ctx, set, snap)
		if err != nil {
			return err
		}
		summary, err = s.commit(ctx, cs)
		span.SetAttribute("changes", len(summary.Changes))
		return err
	})
	return summary, err
}

// Teardown deletes every registry entry of project.
func (s *Service) Teardown(ctx context.Context, project string) (AppliedSummary, error) {
	var summary AppliedSummary
	err := s.observe(ctx, "teardown", func(ctx context.Context, _ TraceSpan) error {
		snap, err := s.readSnapshot(ctx, project)
		if err != nil {
			return err
		}
		summary, err = s.commit(ctx, TeardownChangeset(snap))
		return err
	})
	return summary, err
}

func (s *Service) commit(ctx context.Context, cs Changeset) (AppliedSummary, error) {
	var summary AppliedSummary
	err := s.observe(ctx, "commit", func(ctx context.Context, _ TraceSpan) error {
		var err error
		summary, err = ApplyChangeset(ctx, s.store, cs)
		return err
	})
	s.cache.Invalidate(cs.Project)
	return summary, err
}
