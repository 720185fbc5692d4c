// Package service implements the request lifecycle: creation, donor
// selection, eligibility and consent gates, scheduling, outcome, cancellation
// and expiry. Every state change commits inside one transaction together with
// its lifecycle entry, audit entry and any donor or transplant write.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"transplant/internal/notification"
	"transplant/internal/platform/metrics"
	"transplant/internal/request/models"
	requestStore "transplant/internal/request/store/request"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
	"transplant/pkg/requestcontext"
)

const defaultRequestTTL = 30 * 24 * time.Hour

var tracer = otel.Tracer("transplant/request")

type RequestStore interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	List(ctx context.Context, filter requestStore.ListFilter) ([]*models.Request, error)
	Transition(ctx context.Context, req *models.Request) error
	ListExpirable(ctx context.Context, now time.Time, after requestStore.ExpiryKey, limit int) ([]requestStore.ExpiryKey, error)
}

type TransplantStore interface {
	Create(ctx context.Context, t *models.Transplant) error
	FindByID(ctx context.Context, transplantID id.TransplantID) (*models.Transplant, error)
	FindByRequest(ctx context.Context, requestID id.RequestID) (*models.Transplant, error)
	UpdateStatus(ctx context.Context, t *models.Transplant, from models.TransplantStatus) error
	ListByHospital(ctx context.Context, hospitalID id.HospitalID) ([]*models.Transplant, error)
	SaveStats(ctx context.Context, stats models.HospitalStats) error
	FindStats(ctx context.Context, hospitalID id.HospitalID) (models.HospitalStats, error)
}

// Sequence hands out the per-year counter behind request ids.
type Sequence interface {
	Next(ctx context.Context, year int) (int64, error)
}

// DonorPool reserves and releases donors across both registries.
// Reserve moves an active candidate to matched and returns the user account
// to notify (nil when the donor has none). Release moves it back.
type DonorPool interface {
	Reserve(ctx context.Context, ref id.DonorRef) (id.UserID, error)
	Release(ctx context.Context, ref id.DonorRef) error
}

// CompatibilityChecker re-checks a candidate against the request before approval.
type CompatibilityChecker interface {
	CheckCompatible(ctx context.Context, req *models.Request, ref id.DonorRef) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type Notifier interface {
	Notify(ctx context.Context, n notification.Notification)
}

// Service owns the request state machine.
type Service struct {
	requests    RequestStore
	transplants TransplantStore
	sequence    Sequence
	donors      DonorPool
	checker     CompatibilityChecker
	tx          tx.Runner

	auditPublisher AuditPublisher
	notifier       Notifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
	clock          func() time.Time
	requestTTL     time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source. Request-scoped time from the
// requesttime middleware still takes precedence.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithRequestTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.requestTTL = ttl
		}
	}
}

// WithCompatibilityChecker installs the matching engine's pre-approval check.
func WithCompatibilityChecker(c CompatibilityChecker) Option {
	return func(s *Service) {
		s.checker = c
	}
}

func New(requests RequestStore, transplants TransplantStore, sequence Sequence, donors DonorPool, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		requests:    requests,
		transplants: transplants,
		sequence:    sequence,
		donors:      donors,
		tx:          runner,
		logger:      slog.Default(),
		clock:       time.Now,
		requestTTL:  defaultRequestTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now(ctx context.Context) time.Time {
	if requestcontext.HasTime(ctx) {
		return requestcontext.Now(ctx).UTC()
	}
	return s.clock().UTC()
}

func (s *Service) startSpan(ctx context.Context, op string, requestID id.RequestID) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "request."+op)
	if requestID != "" {
		span.SetAttributes(attribute.String("request.id", requestID.String()))
	}
	return ctx, span
}

// emit writes an audit entry inside the caller's transaction. A failed append
// aborts the transaction so no state change goes unrecorded.
func (s *Service) emit(ctx context.Context, entry audit.Entry) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	return nil
}

func (s *Service) auditRequest(ctx context.Context, actor id.Actor, action audit.ActionType, req *models.Request, details string, at time.Time) error {
	return s.emit(ctx, audit.NewEntry(ctx, actor, action, audit.EntityRequest, req.ID.String(), details, at))
}

func (s *Service) notify(ctx context.Context, n notification.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}

func requestRelated(req *models.Request) notification.Related {
	return notification.Related{EntityType: string(audit.EntityRequest), EntityID: req.ID.String()}
}

// load reads a request and checks that actor may act for its hospital.
func (s *Service) load(ctx context.Context, actor id.Actor, requestID id.RequestID) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, translate(err, "request")
	}
	if !actor.ActsFor(req.HospitalID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not act for the owning hospital")
	}
	return req, nil
}

// save persists a transition and counts it. A lost version race surfaces as a
// retryable conflict.
func (s *Service) save(ctx context.Context, op string, req *models.Request, from models.Stage) error {
	if err := s.requests.Transition(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncConflict(op)
			return dErrors.Wrap(err, dErrors.CodeConflict, "request was modified concurrently, retry")
		}
		return translate(err, "request")
	}
	s.metrics.IncTransition(string(from), string(req.CurrentStage()))
	return nil
}

func requireStaff(actor id.Actor) error {
	if actor.Role != id.RoleHospital && actor.Role != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "hospital or admin role required")
	}
	return nil
}

// translate maps store sentinels onto domain errors. Errors that already
// carry a domain code pass through unchanged.
func translate(err error, entity string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" already exists")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" was modified concurrently, retry")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity)
}
