package core

import (
	"context"
	"fmt"
	"time"

	"equiploan/internal/infra/persistence/memory"
	"equiploan/pkg/domain"
)

// Service exposes the transactional workflow operations of the equipment loan domain.
type Service struct {
	store   domain.PersistentStore
	engine  *domain.RulesEngine
	clock   Clock
	now     func() time.Time
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	actor   string
	codes   SessionCodeGenerator
	locks   *keyedMutex
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used for derived views such as overdue detection.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder observed once per operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer started once per operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithActor sets the admin user recorded on audit entries.
func WithActor(actor string) Option {
	return func(s *Service) {
		if actor != "" {
			s.actor = actor
		}
	}
}

// WithSessionCodeGenerator replaces the random session code source.
func WithSessionCodeGenerator(gen SessionCodeGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.codes = gen
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		engine:  store.RulesEngine(),
		clock:   systemClock(),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		actor:   memory.DefaultActor,
		codes:   RandomSessionCode,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.now = s.clock.Now
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
// The store shares the service clock.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	probe := &Service{clock: systemClock()}
	for _, opt := range opts {
		opt(probe)
	}
	store := memory.NewStore(engine, memory.WithNowFunc(probe.clock.Now))
	return NewService(store, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// RulesEngine returns the engine evaluated on every commit.
func (s *Service) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// run executes fn inside one store transaction and records tracing, metrics and logs for op.
func (s *Service) run(ctx context.Context, op string, fn func(tx domain.Tx) error) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	s.logViolations(op, res)
	if err != nil {
		s.logger.Warn("service operation failed", "operation", op, "duration", elapsed, "error", err)
		return res, err
	}
	s.logger.Debug("service operation committed", "operation", op, "duration", elapsed)
	return res, nil
}

// view executes a read-only fn with the same instrumentation as run.
func (s *Service) view(ctx context.Context, op string, fn func(v domain.View) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := s.store.View(ctx, fn)
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	if err != nil {
		s.logger.Warn("service query failed", "operation", op, "duration", elapsed, "error", err)
	}
	return err
}

func (s *Service) logViolations(op string, res domain.Result) {
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityBlock:
			s.logger.Warn("rule blocked transaction", "operation", op, "rule", v.Rule, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
		case domain.SeverityWarn:
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
		default:
			s.logger.Info("rule note", "operation", op, "rule", v.Rule, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
		}
	}
}

// audit appends an entry attributed to the service actor.
func (s *Service) audit(tx domain.Tx, action domain.AuditAction, itemID, format string, args ...any) {
	tx.AppendAudit(domain.AuditLog{
		ActionType:  action,
		ItemID:      itemID,
		AdminUser:   s.actor,
		Description: fmt.Sprintf(format, args...),
	})
}

// ResetToSeed replaces the whole store state with the built-in seed dataset.
func (s *Service) ResetToSeed(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "reset_to_seed")
	err := s.store.ReplaceState(ctx, memory.SeedSnapshot())
	span.End(err)
	if err != nil {
		s.logger.Error("reset to seed failed", "error", err)
		return err
	}
	s.logger.Info("store reset to seed dataset")
	return nil
}

// Snapshot exports the current store state.
func (s *Service) Snapshot() domain.Snapshot {
	return s.store.ExportState()
}

// RecordExport appends an EXPORT audit entry for a generated report.
func (s *Service) RecordExport(ctx context.Context, description string) (domain.Result, error) {
	return s.run(ctx, "record_export", func(tx domain.Tx) error {
		s.audit(tx, domain.AuditExport, "", "%s", description)
		return nil
	})
}

func findItem(v domain.View, id string) (domain.Item, error) {
	item, ok := v.FindItem(id)
	if !ok {
		return domain.Item{}, domain.NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	return item, nil
}

func findSession(v domain.View, id string) (domain.BorrowSession, error) {
	sess, ok := v.FindSession(id)
	if !ok {
		return domain.BorrowSession{}, domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	return sess, nil
}

func findTransaction(v domain.View, id string) (domain.Transaction, error) {
	t, ok := v.FindTransaction(id)
	if !ok {
		return domain.Transaction{}, domain.NotFoundError{Entity: domain.EntityTransaction, ID: id}
	}
	return t, nil
}

func findMaintenanceLog(v domain.View, id string) (domain.MaintenanceLog, error) {
	m, ok := v.FindMaintenanceLog(id)
	if !ok {
		return domain.MaintenanceLog{}, domain.NotFoundError{Entity: domain.EntityMaintenance, ID: id}
	}
	return m, nil
}
