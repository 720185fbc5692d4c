package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"transplant/internal/notification"
	"transplant/internal/platform/metrics"
	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
)

// RequestStore is the slice of the request store the tracker needs.
// RecordBreach is a conditional update independent of the request version.
// CountBreaches and ListOpenUnbreached cover the whole population, not a page.
type RequestStore interface {
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	RecordBreach(ctx context.Context, requestID id.RequestID, at time.Time, reason string) (bool, error)
	CountBreaches(ctx context.Context, hospitalID id.HospitalID) (total, breached int, err error)
	ListOpenUnbreached(ctx context.Context, urgency models.Urgency, createdBefore time.Time) ([]*models.Request, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type Notifier interface {
	Notify(ctx context.Context, n notification.Notification)
}

type Service struct {
	requests       RequestStore
	tx             tx.Runner
	tracker        *Tracker
	auditPublisher AuditPublisher
	notifier       Notifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
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

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.tracker = NewTracker(clock)
	}
}

func New(requests RequestStore, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		tx:       runner,
		tracker:  NewTracker(time.Now),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordSLABreach records the breach once with its reason. Later calls return
// the request with the original record unchanged and write nothing.
func (s *Service) RecordSLABreach(ctx context.Context, actor id.Actor, requestID id.RequestID, reason string) (*models.Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "delay reason is required")
	}
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var (
		req      *models.Request
		recorded bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.load(txCtx, actor, requestID)
		if err != nil {
			return err
		}
		now := s.tracker.clock().UTC()
		recorded, err = s.requests.RecordBreach(txCtx, requestID, now, reason)
		if err != nil {
			return translate(err)
		}
		if !recorded {
			return nil
		}
		req.RecordBreach(now, reason)
		if s.auditPublisher == nil {
			return nil
		}
		entry := audit.NewEntry(txCtx, actor, audit.ActionSLABreach, audit.EntityRequest, req.ID.String(), "SLA breached: "+reason, now)
		if err := s.auditPublisher.Emit(txCtx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !recorded {
		return req, nil
	}

	s.metrics.IncSLABreach()
	s.logger.WarnContext(ctx, "sla breach recorded", "request_id", req.ID, "urgency", req.Urgency)
	if s.notifier != nil {
		s.notifier.Notify(ctx, notification.ToHospital(req.HospitalID.String(), notification.TypeSLABreach,
			"SLA breached",
			fmt.Sprintf("Request %s exceeded its %s SLA: %s", req.ID, req.Urgency, reason),
			notification.Related{EntityType: string(audit.EntityRequest), EntityID: req.ID.String()}))
	}
	return req, nil
}

// SLAStatus returns the current snapshot for one request.
func (s *Service) SLAStatus(ctx context.Context, actor id.Actor, requestID id.RequestID) (Snapshot, error) {
	if err := requireStaff(actor); err != nil {
		return Snapshot{}, err
	}
	req, err := s.load(ctx, actor, requestID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.tracker.Evaluate(req), nil
}

// ComplianceReport summarises a hospital's recorded breaches.
type ComplianceReport struct {
	HospitalID id.HospitalID `json:"hospital_id"`
	Total      int           `json:"total"`
	Breached   int           `json:"breached"`
	Rate       int           `json:"compliance_rate"`
}

func (s *Service) Compliance(ctx context.Context, actor id.Actor, hospitalID id.HospitalID) (ComplianceReport, error) {
	if err := requireStaff(actor); err != nil {
		return ComplianceReport{}, err
	}
	if !actor.ActsFor(hospitalID) {
		return ComplianceReport{}, dErrors.New(dErrors.CodeForbidden, "actor may not read another hospital's compliance")
	}
	total, breached, err := s.requests.CountBreaches(ctx, hospitalID)
	if err != nil {
		return ComplianceReport{}, translate(err)
	}
	return ComplianceReport{
		HospitalID: hospitalID,
		Total:      total,
		Breached:   breached,
		Rate:       RateOf(total, breached),
	}, nil
}

// NearBreach lists open critical requests approaching their deadline without
// a recorded breach.
func (s *Service) NearBreach(ctx context.Context) ([]Snapshot, error) {
	now := s.tracker.clock().UTC()
	reqs, err := s.requests.ListOpenUnbreached(ctx, models.UrgencyCritical, now.Add(-nearBreachHours*time.Hour))
	if err != nil {
		return nil, translate(err)
	}
	out := make([]Snapshot, 0, len(reqs))
	for _, r := range reqs {
		if snap := evaluateAt(r, now); snap.NearBreach {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, actor id.Actor, requestID id.RequestID) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, translate(err)
	}
	if !actor.ActsFor(req.HospitalID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not act for the owning hospital")
	}
	return req, nil
}

func requireStaff(actor id.Actor) error {
	if actor.Role != id.RoleHospital && actor.Role != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "hospital or admin role required")
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "request not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access request")
}
