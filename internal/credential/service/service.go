// Package service implements the credential registry operations.
//
// Every operation runs as one ledger transaction. Callers are passed
// explicitly; the HTTP layer resolves them from the bearer token. Side
// effects outside the ledger (Issued notifications, cache tombstones, audit
// events) run only after the transaction commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"soulcert/internal/credential/events"
	"soulcert/internal/credential/metrics"
	"soulcert/internal/credential/models"
	"soulcert/internal/credential/store"
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
	"soulcert/pkg/platform/audit"
	"soulcert/pkg/platform/sentinel"
	"soulcert/pkg/requestcontext"
)

const tracerName = "soulcert/credential"

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, principal id.PrincipalID) ([]audit.Event, error)
}

// RecordCache is an optional read cache for record views. Get reports
// cache.ErrMiss or cache.ErrBurned; any other error is logged and treated as
// a miss.
type RecordCache interface {
	Get(ctx context.Context, recordID id.RecordID) (models.RecordView, error)
	Put(ctx context.Context, view models.RecordView) error
	MarkBurned(ctx context.Context, recordID id.RecordID) error
}

// Service is the Credential Registry.
type Service struct {
	tx        store.Tx
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   AuditPublisher
	publisher events.Publisher
	cache     RecordCache
	tracer    trace.Tracer
	clock     func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

// WithPublisher sets the sink for Issued notifications.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

func WithRecordCache(cache RecordCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the mint timestamp source. Without it the request
// time from requestcontext is used.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// New constructs a Service over tx. A nil tx keeps the ledger in memory.
func New(tx store.Tx, opts ...Option) *Service {
	if tx == nil {
		tx = store.NewInMemory()
	}
	s := &Service{
		tx:     tx,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = events.NewLog(s.logger)
	}
	if s.cache != nil && !store.IsDurable(s.tx) {
		s.logger.Warn("record cache disabled: ledger does not persist record IDs across restarts")
		s.cache = nil
	}
	return s
}

// now is the mint and audit timestamp for the current operation.
func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// begin opens a span for operation and returns a finisher that records the
// outcome on the span and in metrics.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error) error) {
	ctx, span := s.tracer.Start(ctx, "credential."+operation)
	start := time.Now()
	return ctx, func(err error) error {
		err = translate(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		s.metrics.ObserveOperation(operation, err, time.Since(start))
		return err
	}
}

// translate maps store errors onto registry error kinds. Domain errors pass
// through; anything else becomes an internal error.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sentinel.ErrOutOfRange):
		return models.ErrIndexOutOfRange
	case errors.Is(err, sentinel.ErrNotFound):
		return models.ErrUnknownRecord
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
}

func requireCaller(caller id.PrincipalID) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = s.now(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"principal", event.Principal.String(),
		"subject", event.Subject,
		"decision", event.Decision,
		"request_id", event.RequestID,
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
			"request_id", event.RequestID,
		)
	}
}

// AuditTrail lists audit events where principal was the acting caller.
func (s *Service) AuditTrail(ctx context.Context, principal id.PrincipalID) ([]audit.Event, error) {
	if s.auditor == nil {
		return []audit.Event{}, nil
	}
	out, err := s.auditor.List(ctx, principal)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return out, nil
}
