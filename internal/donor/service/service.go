// Package service manages the donor registry: registration, status changes,
// public profiles and the consent-request handshake that gates access to a
// donor's confidential bundle.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transplant/internal/donor/models"
	donorStore "transplant/internal/donor/store/donor"
	"transplant/internal/notification"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
	"transplant/pkg/requestcontext"
)

type DonorStore interface {
	Create(ctx context.Context, d *models.Donor) error
	FindByID(ctx context.Context, donorID id.DonorID) (*models.Donor, error)
	FindByUserID(ctx context.Context, userID id.UserID) (*models.Donor, error)
	List(ctx context.Context, filter donorStore.ListFilter) ([]*models.Donor, error)
	UpdateStatus(ctx context.Context, donorID id.DonorID, from, to models.Status, now time.Time) error
	UpsertConsentRequest(ctx context.Context, donorID id.DonorID, cr models.ConsentRequest) error
	RespondConsentRequest(ctx context.Context, donorID id.DonorID, cr models.ConsentRequest) error
	SaveConfidential(ctx context.Context, rec models.ConfidentialRecord) error
	FindConfidential(ctx context.Context, donorID id.DonorID) (*models.ConfidentialRecord, error)
}

type ProfileStore interface {
	Create(ctx context.Context, p *models.PublicProfile) error
	FindByUserID(ctx context.Context, userID id.UserID) (*models.PublicProfile, error)
	List(ctx context.Context, status models.Status) ([]*models.PublicProfile, error)
	UpdateStatus(ctx context.Context, userID id.UserID, from, to models.Status, now time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type Notifier interface {
	Notify(ctx context.Context, n notification.Notification)
}

type Service struct {
	donors         DonorStore
	profiles       ProfileStore
	tx             tx.Runner
	auditPublisher AuditPublisher
	notifier       Notifier
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

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(donors DonorStore, profiles ProfileStore, runner tx.Runner, opts ...Option) *Service {
	s := &Service{donors: donors, profiles: profiles, tx: runner, logger: slog.Default(), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterDonorInput is a donor registration with optional confidential
// document references already uploaded to object storage.
type RegisterDonorInput struct {
	HospitalID   id.HospitalID
	Donor        models.DonorInput
	Confidential *models.ConfidentialRecord
}

func (s *Service) RegisterDonor(ctx context.Context, actor id.Actor, in RegisterDonorInput) (*models.Donor, error) {
	if actor.Role != id.RoleHospital && actor.Role != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "hospital or admin role required")
	}
	hospitalID := in.HospitalID
	if hospitalID.IsNil() {
		hospitalID = actor.HospitalID
	}
	if hospitalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "hospital_id is required")
	}
	if !actor.ActsFor(hospitalID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not register donors for this hospital")
	}
	now := s.now(ctx)
	d, err := models.NewDonor(id.NewDonorID(), hospitalID, in.Donor, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.donors.Create(txCtx, d); err != nil {
			return translate(err, "donor")
		}
		if in.Confidential != nil {
			rec := *in.Confidential
			rec.DonorID = d.ID
			if err := s.donors.SaveConfidential(txCtx, rec); err != nil {
				return translate(err, "confidential record")
			}
		}
		return s.emit(txCtx, audit.NewEntry(txCtx, actor, audit.ActionDonorRegistered, audit.EntityDonor, d.ID.String(),
			fmt.Sprintf("%s donor registered for %v", d.BloodType, d.OrganPreferences), now))
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RegisterPublicProfile lets a donor-role user offer themselves for matching.
func (s *Service) RegisterPublicProfile(ctx context.Context, actor id.Actor, in models.ProfileInput) (*models.PublicProfile, error) {
	if actor.Role != id.RoleDonor || actor.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "donor role required")
	}
	now := s.now(ctx)
	p, err := models.NewPublicProfile(actor.ID, in, now)
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.profiles.Create(txCtx, p); err != nil {
			return translate(err, "public profile")
		}
		return s.emit(txCtx, audit.NewEntry(txCtx, actor, audit.ActionPublicProfileRegistered, audit.EntityPublicProfile,
			p.UserID.String(), "public profile registered", now))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateDonorStatus changes a donor's availability. The write is conditional
// on the status read, so a concurrent match turns into a conflict.
func (s *Service) UpdateDonorStatus(ctx context.Context, actor id.Actor, donorID id.DonorID, to models.Status) (*models.Donor, error) {
	var d *models.Donor
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		d, err = s.donors.FindByID(txCtx, donorID)
		if err != nil {
			return translate(err, "donor")
		}
		if !actor.ActsFor(d.RegisteredBy) {
			return dErrors.New(dErrors.CodeForbidden, "only the registering hospital may change donor status")
		}
		if d.Status == to {
			return nil
		}
		if err := models.CanSetManually(d.Status, to); err != nil {
			return err
		}
		now := s.now(txCtx)
		from := d.Status
		if err := s.donors.UpdateStatus(txCtx, donorID, from, to, now); err != nil {
			return translate(err, "donor")
		}
		d.Status = to
		d.UpdatedAt = now
		return s.emit(txCtx, audit.NewEntry(txCtx, actor, audit.ActionDonorStatusChanged, audit.EntityDonor, d.ID.String(),
			fmt.Sprintf("status %s -> %s", from, to), now))
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RequestConfidentialAccess files a hospital's request to see the donor's
// confidential bundle and tells the donor.
func (s *Service) RequestConfidentialAccess(ctx context.Context, actor id.Actor, donorID id.DonorID) (models.ConsentRequest, error) {
	if actor.Role != id.RoleHospital || actor.HospitalID.IsNil() {
		return models.ConsentRequest{}, dErrors.New(dErrors.CodeForbidden, "hospital role required")
	}
	var (
		d  *models.Donor
		cr models.ConsentRequest
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		d, err = s.donors.FindByID(txCtx, donorID)
		if err != nil {
			return translate(err, "donor")
		}
		now := s.now(txCtx)
		cr = models.NewConsentRequest(actor.HospitalID, now)
		if err := s.donors.UpsertConsentRequest(txCtx, donorID, cr); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "a consent request from this hospital is already open or accepted")
			}
			return translate(err, "consent request")
		}
		return s.emit(txCtx, audit.NewEntry(txCtx, actor, audit.ActionConsentRequested, audit.EntityDonor, donorID.String(),
			"confidential access requested by hospital "+actor.HospitalID.String(), now))
	})
	if err != nil {
		return models.ConsentRequest{}, err
	}

	if s.notifier != nil && !d.UserID.IsNil() {
		s.notifier.Notify(ctx, notification.ToDonor(d.UserID.String(), notification.TypeConsentRequest,
			"Access to your records was requested",
			"A hospital asked to view your confidential documents",
			notification.Related{EntityType: string(audit.EntityDonor), EntityID: donorID.String()}))
	}
	return cr, nil
}

// RespondToConsentRequest records the donor's answer for one hospital.
func (s *Service) RespondToConsentRequest(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, accept bool) (models.ConsentRequest, error) {
	if actor.Role != id.RoleDonor || actor.ID.IsNil() {
		return models.ConsentRequest{}, dErrors.New(dErrors.CodeForbidden, "donor role required")
	}
	var cr models.ConsentRequest
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := s.donors.FindByUserID(txCtx, actor.ID)
		if err != nil {
			return translate(err, "donor")
		}
		existing, ok := d.ConsentRequestFor(hospitalID)
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "no consent request from this hospital")
		}
		now := s.now(txCtx)
		cr, err = existing.Respond(accept, now)
		if err != nil {
			return err
		}
		if err := s.donors.RespondConsentRequest(txCtx, d.ID, cr); err != nil {
			return translate(err, "consent request")
		}
		action := audit.ActionConsentRequestRejected
		if accept {
			action = audit.ActionConsentRequestAccepted
		}
		return s.emit(txCtx, audit.NewEntry(txCtx, actor, action, audit.EntityDonor, d.ID.String(),
			fmt.Sprintf("consent request from hospital %s %s", hospitalID, cr.Status), now))
	})
	if err != nil {
		return models.ConsentRequest{}, err
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, notification.ToHospital(hospitalID.String(), notification.TypeConsentResponse,
			"Consent request answered",
			fmt.Sprintf("Your confidential access request was %s", cr.Status),
			notification.Related{EntityType: string(audit.EntityDonor)}))
	}
	return cr, nil
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
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" already exists")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" was modified concurrently, retry")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity)
}
