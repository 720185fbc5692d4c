package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"transplant/internal/notification"
	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
)

// CreateRequestInput is the validated payload for CreateRequest. HospitalID
// may be left nil by hospital staff; it then defaults to the actor's hospital.
type CreateRequestInput struct {
	HospitalID id.HospitalID
	Patient    models.Patient
	Urgency    string
	OrganType  string
}

// SelectAction is the coordinator's decision on a proposed donor.
type SelectAction string

const (
	SelectApprove SelectAction = "approve"
	SelectReject  SelectAction = "reject"
)

func ParseSelectAction(s string) (SelectAction, error) {
	switch a := SelectAction(strings.ToLower(strings.TrimSpace(s))); a {
	case SelectApprove, SelectReject:
		return a, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "action must be approve or reject")
}

func (s *Service) CreateRequest(ctx context.Context, actor id.Actor, in CreateRequestInput) (*models.Request, error) {
	ctx, span := s.startSpan(ctx, "create", "")
	defer span.End()
	defer s.metrics.ObserveOperation("create_request", time.Now())

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	hospitalID := in.HospitalID
	if hospitalID.IsNil() {
		hospitalID = actor.HospitalID
	}
	if hospitalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "hospital_id is required")
	}
	if !actor.ActsFor(hospitalID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not create requests for this hospital")
	}
	urgency, err := models.ParseUrgency(in.Urgency)
	if err != nil {
		return nil, err
	}
	organ, err := id.ParseOrganType(in.OrganType)
	if err != nil {
		return nil, err
	}

	now := s.now(ctx)
	seq, err := s.sequence.Next(ctx, now.Year())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate request id")
	}
	req, err := models.NewRequest(id.NewRequestID(now.Year(), seq), hospitalID, in.Patient, urgency, organ, now, s.requestTTL)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requests.Create(txCtx, req); err != nil {
			return translate(err, "request")
		}
		details := fmt.Sprintf("%s request for %s, urgency %s", req.OrganType, req.Patient.Name, req.Urgency)
		return s.auditRequest(txCtx, actor, audit.ActionRequestCreated, req, details, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRequestCreated(string(req.Urgency))

	if req.IsCritical() {
		related := requestRelated(req)
		s.notify(ctx, notification.ToHospital(req.HospitalID.String(), notification.TypeEmergency,
			"Critical transplant request",
			fmt.Sprintf("Critical %s request %s needs a donor within 24 hours", req.OrganType, req.ID), related))
		s.notify(ctx, notification.ToAdmins(notification.TypeSystem,
			"Critical request created",
			fmt.Sprintf("Request %s for %s was created with critical urgency", req.ID, req.OrganType), related))
	}
	return req, nil
}

// SelectDonor records the coordinator's decision on a donor. Approval runs
// the compatibility check, reserves the donor and moves the request to
// matched. Rejection is audited only; the request is left untouched.
func (s *Service) SelectDonor(ctx context.Context, actor id.Actor, requestID id.RequestID, ref id.DonorRef, action SelectAction, reason string) (*models.Request, error) {
	ctx, span := s.startSpan(ctx, "select_donor", requestID)
	defer span.End()
	defer s.metrics.ObserveOperation("select_donor", time.Now())

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !ref.Kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid donor reference")
	}
	if action != SelectApprove && action != SelectReject {
		return nil, dErrors.New(dErrors.CodeValidation, "action must be approve or reject")
	}

	var (
		req     *models.Request
		account id.UserID
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.load(txCtx, actor, requestID)
		if err != nil {
			return err
		}
		now := s.now(txCtx)
		if action == SelectReject {
			if req.Status != models.StatusPending {
				return dErrors.Newf(dErrors.CodeConflict, "cannot reject a donor for request in %s", req.CurrentStage())
			}
			details := fmt.Sprintf("donor %s rejected", ref)
			if reason != "" {
				details += ": " + reason
			}
			return s.auditRequest(txCtx, actor, audit.ActionMatchRejected, req, details, now)
		}

		if err := req.CanMatch(); err != nil {
			return err
		}
		if s.checker != nil {
			if err := s.checker.CheckCompatible(txCtx, req, ref); err != nil {
				return err
			}
		}
		from := req.CurrentStage()
		account, err = s.donors.Reserve(txCtx, ref)
		if err != nil {
			return translate(err, "donor")
		}
		req.ApplyMatch(ref, now, reason)
		if err := s.save(txCtx, "select_donor", req, from); err != nil {
			return err
		}
		return s.auditRequest(txCtx, actor, audit.ActionMatch, req, fmt.Sprintf("matched donor %s", ref), now)
	})
	if err != nil {
		return nil, err
	}

	if action == SelectApprove && !account.IsNil() {
		s.notify(ctx, notification.ToDonor(account.String(), notification.TypeMatchFound,
			"You have been matched",
			fmt.Sprintf("You were matched to a %s transplant request", req.OrganType), requestRelated(req)))
	}
	return req, nil
}

// ValidateEligibility marks the matched pair clinically eligible. Repeating it
// is a no-op.
func (s *Service) ValidateEligibility(ctx context.Context, actor id.Actor, requestID id.RequestID, notes string) (*models.Request, error) {
	return s.transition(ctx, actor, requestID, "validate_eligibility", func(req *models.Request, now time.Time) (bool, error) {
		changed, err := req.CanValidateEligibility()
		if err != nil || !changed {
			return false, err
		}
		req.ApplyEligibilityValidated(now, notes)
		return true, nil
	}, audit.ActionEligibilityValidated, func(*models.Request) string { return "eligibility validated" })
}

// RejectEligibility records a failed eligibility review.
func (s *Service) RejectEligibility(ctx context.Context, actor id.Actor, requestID id.RequestID, reason string) (*models.Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return s.transition(ctx, actor, requestID, "reject_eligibility", func(req *models.Request, now time.Time) (bool, error) {
		changed, err := req.CanRejectEligibility()
		if err != nil || !changed {
			return false, err
		}
		req.ApplyEligibilityRejected(now, reason)
		return true, nil
	}, audit.ActionEligibilityRejected, func(*models.Request) string { return "eligibility rejected: " + reason })
}

// RecordConsent stores the donor-side consent decision. Repeating the same
// decision is a no-op; changing a recorded decision is a conflict.
func (s *Service) RecordConsent(ctx context.Context, actor id.Actor, requestID id.RequestID, decision models.ConsentStatus, notes string) (*models.Request, error) {
	if decision != models.ConsentGiven && decision != models.ConsentDenied {
		return nil, dErrors.New(dErrors.CodeValidation, "consent decision must be given or denied")
	}
	action := audit.ActionConsentGiven
	if decision == models.ConsentDenied {
		action = audit.ActionConsentDenied
	}
	return s.transition(ctx, actor, requestID, "record_consent", func(req *models.Request, now time.Time) (bool, error) {
		changed, err := req.CanRecordConsent(decision)
		if err != nil || !changed {
			return false, err
		}
		req.ApplyConsent(decision, now, notes)
		return true, nil
	}, action, func(*models.Request) string { return "consent " + string(decision) })
}

// ScheduleSurgery books the operation and creates the single transplant
// record for the request.
func (s *Service) ScheduleSurgery(ctx context.Context, actor id.Actor, requestID id.RequestID, ref id.DonorRef, details models.SurgeryDetails) (*models.Transplant, error) {
	ctx, span := s.startSpan(ctx, "schedule_surgery", requestID)
	defer span.End()
	defer s.metrics.ObserveOperation("schedule_surgery", time.Now())

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}

	var (
		req *models.Request
		t   *models.Transplant
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.load(txCtx, actor, requestID)
		if err != nil {
			return err
		}
		if err := req.CanSchedule(ref); err != nil {
			return err
		}
		now := s.now(txCtx)
		from := req.CurrentStage()
		t = models.NewTransplant(id.NewTransplantID(), req, ref, details, now)
		if err := s.transplants.Create(txCtx, t); err != nil {
			return translate(err, "transplant")
		}
		req.ApplySchedule(t.ID, now, fmt.Sprintf("surgeon %s, room %s", details.Surgeon, details.OperatingRoom))
		if err := s.save(txCtx, "schedule_surgery", req, from); err != nil {
			return err
		}
		return s.auditRequest(txCtx, actor, audit.ActionSurgeryScheduled, req,
			fmt.Sprintf("transplant %s scheduled for %s", t.ID, details.ScheduledDate.UTC().Format(time.RFC3339)), now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notification.ToHospital(req.HospitalID.String(), notification.TypeSurgery,
		"Surgery scheduled",
		fmt.Sprintf("Surgery for request %s is scheduled in %s", req.ID, details.OperatingRoom), requestRelated(req)))
	return t, nil
}

// RecordOutcome completes a scheduled transplant and its request, then
// recomputes the hospital's success rate from stored outcomes.
func (s *Service) RecordOutcome(ctx context.Context, actor id.Actor, transplantID id.TransplantID, outcome models.Outcome) (*models.Transplant, error) {
	ctx, span := s.startSpan(ctx, "record_outcome", "")
	defer span.End()
	defer s.metrics.ObserveOperation("record_outcome", time.Now())

	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var (
		req *models.Request
		t   *models.Transplant
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		t, err = s.transplants.FindByID(txCtx, transplantID)
		if err != nil {
			return translate(err, "transplant")
		}
		req, err = s.load(txCtx, actor, t.RequestID)
		if err != nil {
			return err
		}
		if err := req.CanComplete(); err != nil {
			return err
		}
		if err := t.CanRecordOutcome(); err != nil {
			return err
		}
		now := s.now(txCtx)
		from := req.CurrentStage()

		t.ApplyOutcome(outcome, now)
		if err := s.transplants.UpdateStatus(txCtx, t, models.TransplantScheduled); err != nil {
			return translate(err, "transplant")
		}
		notes := "transplant failed"
		if outcome.Success {
			notes = "transplant successful"
		}
		req.ApplyCompletion(now, notes)
		if err := s.save(txCtx, "record_outcome", req, from); err != nil {
			return err
		}
		if err := s.refreshStats(txCtx, req.HospitalID, now); err != nil {
			return err
		}
		return s.auditRequest(txCtx, actor, audit.ActionOutcomeRecorded, req,
			fmt.Sprintf("transplant %s: %s", t.ID, notes), now)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("request.id", req.ID.String()))
	return t, nil
}

func (s *Service) refreshStats(ctx context.Context, hospitalID id.HospitalID, now time.Time) error {
	all, err := s.transplants.ListByHospital(ctx, hospitalID)
	if err != nil {
		return translate(err, "transplant")
	}
	if err := s.transplants.SaveStats(ctx, models.ComputeHospitalStats(hospitalID, all, now)); err != nil {
		return translate(err, "hospital stats")
	}
	return nil
}

// CancelRequest closes any non-terminal request. A matched donor is released
// and a scheduled transplant is cancelled in the same transaction.
func (s *Service) CancelRequest(ctx context.Context, actor id.Actor, requestID id.RequestID, reason string) (*models.Request, error) {
	ctx, span := s.startSpan(ctx, "cancel", requestID)
	defer span.End()
	defer s.metrics.ObserveOperation("cancel_request", time.Now())

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "cancellation reason is required")
	}

	var req *models.Request
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.load(txCtx, actor, requestID)
		if err != nil {
			return err
		}
		if err := req.CanCancel(); err != nil {
			return err
		}
		now := s.now(txCtx)
		from := req.CurrentStage()

		if req.MatchedDonor != nil {
			if err := s.donors.Release(txCtx, *req.MatchedDonor); err != nil {
				return translate(err, "donor")
			}
		}
		if req.TransplantID != nil {
			t, err := s.transplants.FindByID(txCtx, *req.TransplantID)
			if err != nil {
				return translate(err, "transplant")
			}
			t.Status = models.TransplantCancelled
			if err := s.transplants.UpdateStatus(txCtx, t, models.TransplantScheduled); err != nil {
				return translate(err, "transplant")
			}
		}
		req.ApplyCancel(now, reason)
		if err := s.save(txCtx, "cancel_request", req, from); err != nil {
			return err
		}
		return s.auditRequest(txCtx, actor, audit.ActionRequestCancelled, req, "cancelled: "+reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notification.ToHospital(req.HospitalID.String(), notification.TypeRequestClosed,
		"Request cancelled",
		fmt.Sprintf("Request %s was cancelled: %s", req.ID, reason), requestRelated(req)))
	return req, nil
}

// transition runs a single-request state change that may turn out to be a
// no-op. apply reports whether it mutated the request; unchanged requests
// are returned without a write, lifecycle entry or audit entry.
func (s *Service) transition(
	ctx context.Context,
	actor id.Actor,
	requestID id.RequestID,
	op string,
	apply func(*models.Request, time.Time) (bool, error),
	action audit.ActionType,
	details func(*models.Request) string,
) (*models.Request, error) {
	ctx, span := s.startSpan(ctx, op, requestID)
	defer span.End()
	defer s.metrics.ObserveOperation(op, time.Now())

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var req *models.Request
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.load(txCtx, actor, requestID)
		if err != nil {
			return err
		}
		now := s.now(txCtx)
		from := req.CurrentStage()
		changed, err := apply(req, now)
		if err != nil || !changed {
			return err
		}
		if err := s.save(txCtx, op, req, from); err != nil {
			return err
		}
		return s.auditRequest(txCtx, actor, action, req, details(req), now)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
