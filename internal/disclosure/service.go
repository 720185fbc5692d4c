package disclosure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	donorModels "transplant/internal/donor/models"
	donorStore "transplant/internal/donor/store/donor"
	"transplant/internal/platform/metrics"
	requestModels "transplant/internal/request/models"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
	"transplant/pkg/requestcontext"
)

type RequestStore interface {
	FindByID(ctx context.Context, requestID id.RequestID) (*requestModels.Request, error)
	FindRevealable(ctx context.Context, hospitalID id.HospitalID, ref id.DonorRef) (*requestModels.Request, error)
	MarkRevealed(ctx context.Context, requestID id.RequestID) (bool, error)
}

type DonorStore interface {
	FindByID(ctx context.Context, donorID id.DonorID) (*donorModels.Donor, error)
	List(ctx context.Context, filter donorStore.ListFilter) ([]*donorModels.Donor, error)
	FindConfidential(ctx context.Context, donorID id.DonorID) (*donorModels.ConfidentialRecord, error)
}

// BundleStorage signs download links for confidential documents.
type BundleStorage interface {
	PresignGet(ctx context.Context, objectKey string) (string, time.Time, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type Service struct {
	requests       RequestStore
	donors         DonorStore
	storage        BundleStorage
	tx             tx.Runner
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	clock          func() time.Time
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(requests RequestStore, donors DonorStore, storage BundleStorage, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		donors:   donors,
		storage:  storage,
		tx:       runner,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDonorView returns the donor as hospitalID may see it. requestID names
// the request that justifies a matched-tier view; when nil, the hospital's
// matched and completed requests are searched for one.
func (s *Service) GetDonorView(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, donorID id.DonorID, requestID *id.RequestID) (DonorView, error) {
	d, err := s.donors.FindByID(ctx, donorID)
	if err != nil {
		return DonorView{}, translate(err, "donor")
	}

	switch actor.Role {
	case id.RoleAdmin:
		return fullView(TierAdmin, d), nil
	case id.RoleDonor:
		if !actor.ID.IsNil() && d.UserID == actor.ID {
			return fullView(TierSelf, d), nil
		}
		return DonorView{}, dErrors.New(dErrors.CodeForbidden, "donors may only view their own record")
	case id.RoleHospital:
		if actor.HospitalID != hospitalID {
			return DonorView{}, dErrors.New(dErrors.CodeForbidden, "hospital staff may only view donors as their own hospital")
		}
	default:
		return DonorView{}, dErrors.New(dErrors.CodeForbidden, "unknown role")
	}

	if d.RegisteredBy == hospitalID {
		return fullView(TierRegistering, d), nil
	}

	req, err := s.revealingRequest(ctx, hospitalID, id.RefToDonor(donorID), requestID)
	if err != nil {
		return DonorView{}, err
	}
	if req == nil {
		return anonymizedView(d), nil
	}
	if err := s.reveal(ctx, actor, req, donorID); err != nil {
		return DonorView{}, err
	}
	return fullView(TierMatched, d), nil
}

// revealingRequest finds a request owned by hospitalID, matched to ref, that
// passes the eligibility and consent checks. It returns nil when none does.
func (s *Service) revealingRequest(ctx context.Context, hospitalID id.HospitalID, ref id.DonorRef, requestID *id.RequestID) (*requestModels.Request, error) {
	qualifies := func(r *requestModels.Request) bool {
		return r.HospitalID == hospitalID && r.IsMatchedTo(ref) && r.CanReveal()
	}
	if requestID != nil {
		r, err := s.requests.FindByID(ctx, *requestID)
		if err != nil {
			return nil, translate(err, "request")
		}
		if r.HospitalID != hospitalID {
			return nil, dErrors.New(dErrors.CodeForbidden, "request belongs to another hospital")
		}
		if !qualifies(r) {
			return nil, nil
		}
		return r, nil
	}
	r, err := s.requests.FindRevealable(ctx, hospitalID, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "request")
	}
	return r, nil
}

// reveal flips the request's reveal flag and writes the access audit in one
// transaction. Only the read that flips the flag is audited.
func (s *Service) reveal(ctx context.Context, actor id.Actor, req *requestModels.Request, donorID id.DonorID) error {
	if req.ConfidentialDataRevealed {
		return nil
	}
	var flipped bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		flipped, err = s.requests.MarkRevealed(txCtx, req.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "request changed before disclosure, retry")
			}
			return translate(err, "request")
		}
		if !flipped {
			return nil
		}
		return s.emit(txCtx, audit.NewEntry(txCtx, actor, audit.ActionConfidentialDataAccess, audit.EntityRequest,
			req.ID.String(), fmt.Sprintf("donor %s disclosed to hospital %s", donorID, req.HospitalID), s.now(txCtx)))
	})
	if err != nil {
		return err
	}
	if flipped {
		s.metrics.IncReveal()
		s.logger.InfoContext(ctx, "confidential donor data revealed",
			"request_id", requestcontext.RequestID(ctx), "request", req.ID, "donor", donorID)
	}
	return nil
}

// ListDonors returns donors as hospitalID may see them. Listing never
// triggers a reveal; matched-tier access goes through GetDonorView.
func (s *Service) ListDonors(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, filter donorStore.ListFilter) ([]DonorView, error) {
	if actor.Role == id.RoleDonor {
		return nil, dErrors.New(dErrors.CodeForbidden, "donors may not list the registry")
	}
	if actor.Role == id.RoleHospital && actor.HospitalID != hospitalID {
		return nil, dErrors.New(dErrors.CodeForbidden, "hospital staff may only list donors as their own hospital")
	}
	donors, err := s.donors.List(ctx, filter)
	if err != nil {
		return nil, translate(err, "donor")
	}
	out := make([]DonorView, 0, len(donors))
	for _, d := range donors {
		switch {
		case actor.IsAdmin():
			out = append(out, fullView(TierAdmin, d))
		case d.RegisteredBy == hospitalID:
			out = append(out, fullView(TierRegistering, d))
		default:
			out = append(out, anonymizedView(d))
		}
	}
	return out, nil
}

// GetConfidentialBundle returns signed links to the donor's confidential
// documents. The donor must have accepted a consent request from hospitalID;
// request-level disclosure does not grant it.
func (s *Service) GetConfidentialBundle(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, donorID id.DonorID) (*Bundle, error) {
	if actor.Role != id.RoleHospital || actor.HospitalID != hospitalID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only staff of the requesting hospital may open the bundle")
	}
	d, err := s.donors.FindByID(ctx, donorID)
	if err != nil {
		return nil, translate(err, "donor")
	}
	cr, ok := d.ConsentRequestFor(hospitalID)
	if !ok || !cr.IsAccepted() {
		return nil, dErrors.New(dErrors.CodeForbidden, "donor has not accepted a consent request from this hospital")
	}
	rec, err := s.donors.FindConfidential(ctx, donorID)
	if err != nil {
		return nil, translate(err, "confidential record")
	}

	bundle := &Bundle{DonorID: donorID, Documents: []BundleDocument{}}
	groups := []struct {
		category string
		docs     []donorModels.DocumentRef
	}{
		{"identity", rec.IdentityDocuments},
		{"lab_report", rec.LabReports},
		{"legal_consent", rec.LegalConsentForms},
	}
	for _, g := range groups {
		for _, doc := range g.docs {
			link, expires, err := s.storage.PresignGet(ctx, doc.ObjectKey)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to sign confidential document",
					"request_id", requestcontext.RequestID(ctx), "donor", donorID, "error", err)
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to prepare confidential bundle")
			}
			bundle.Documents = append(bundle.Documents, BundleDocument{
				Category: g.category, Name: doc.Name, URL: link, ExpiresAt: expires,
			})
		}
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.emit(txCtx, audit.NewEntry(txCtx, actor, audit.ActionConfidentialBundleAccess, audit.EntityDonor,
			donorID.String(), fmt.Sprintf("%d documents released to hospital %s", len(bundle.Documents), hospitalID), s.now(txCtx)))
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if requestcontext.HasTime(ctx) {
		return requestcontext.Now(ctx).UTC()
	}
	return s.clock().UTC()
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	return nil
}

func translate(err error, entity string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out loading "+entity)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+entity)
}
