package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Sequence,DonorPool,CompatibilityChecker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"transplant/internal/notification"
	"transplant/internal/request/models"
	"transplant/internal/request/sequence"
	"transplant/internal/request/service/mocks"
	requestStore "transplant/internal/request/store/request"
	transplantStore "transplant/internal/request/store/transplant"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
	auditmemory "transplant/pkg/platform/audit/store/memory"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
	"transplant/pkg/testutil"
)

var created = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// memoryPool is a minimal donor pool with the same CAS semantics as the
// donor stores.
type memoryPool struct {
	mu       sync.Mutex
	matched  map[id.DonorRef]bool
	accounts map[id.DonorRef]id.UserID
}

func newMemoryPool() *memoryPool {
	return &memoryPool{matched: map[id.DonorRef]bool{}, accounts: map[id.DonorRef]id.UserID{}}
}

func (p *memoryPool) Reserve(ctx context.Context, ref id.DonorRef) (id.UserID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.matched[ref] {
		return id.UserID{}, fmt.Errorf("donor %s: %w", ref, sentinel.ErrConflict)
	}
	p.matched[ref] = true
	tx.OnRollback(ctx, func() { p.set(ref, false) })
	return p.accounts[ref], nil
}

func (p *memoryPool) Release(ctx context.Context, ref id.DonorRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.matched[ref] {
		return fmt.Errorf("donor %s: %w", ref, sentinel.ErrConflict)
	}
	p.matched[ref] = false
	tx.OnRollback(ctx, func() { p.set(ref, true) })
	return nil
}

func (p *memoryPool) set(ref id.DonorRef, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matched[ref] = v
}

func (p *memoryPool) isMatched(ref id.DonorRef) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matched[ref]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg notification.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) types() []notification.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.Type, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Type)
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, audit.Entry) error {
	return errors.New("audit store down")
}

type LifecycleSuite struct {
	suite.Suite
	ctx         context.Context
	now         time.Time
	requests    *requestStore.InMemory
	transplants *transplantStore.InMemory
	pool        *memoryPool
	auditStore  *auditmemory.InMemoryStore
	notifier    *recordingNotifier
	service     *Service
	hospital    id.HospitalID
	staff       id.Actor
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = created
	s.requests = requestStore.NewInMemory()
	s.transplants = transplantStore.NewInMemory()
	s.pool = newMemoryPool()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.notifier = &recordingNotifier{}
	s.hospital = id.NewHospitalID()
	s.staff = testutil.HospitalStaff(s.hospital)
	s.service = s.newService()
}

func (s *LifecycleSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(auditPublisher{s.auditStore}),
		WithNotifier(s.notifier),
		WithClock(func() time.Time { return s.now }),
	}
	return New(s.requests, s.transplants, sequence.NewMemory(), s.pool, tx.NewMemoryRunner(), append(base, opts...)...)
}

// auditPublisher writes straight through to the store, like the sync publisher.
type auditPublisher struct{ store audit.Store }

func (p auditPublisher) Emit(ctx context.Context, e audit.Entry) error { return p.store.Append(ctx, e) }

func (s *LifecycleSuite) create(urgency string) *models.Request {
	req, err := s.service.CreateRequest(s.ctx, s.staff, CreateRequestInput{
		Patient:   models.Patient{Name: "J. Doe", Age: 40, BloodType: id.BloodAPos, Condition: "renal failure"},
		Urgency:   urgency,
		OrganType: "kidney",
	})
	s.Require().NoError(err)
	return req
}

func (s *LifecycleSuite) matched() (*models.Request, id.DonorRef) {
	req := s.create("high")
	ref := id.RefToDonor(id.NewDonorID())
	req, err := s.service.SelectDonor(s.ctx, s.staff, req.ID, ref, SelectApprove, "")
	s.Require().NoError(err)
	return req, ref
}

func (s *LifecycleSuite) ready() (*models.Request, id.DonorRef) {
	req, ref := s.matched()
	_, err := s.service.ValidateEligibility(s.ctx, s.staff, req.ID, "")
	s.Require().NoError(err)
	req, err = s.service.RecordConsent(s.ctx, s.staff, req.ID, models.ConsentGiven, "")
	s.Require().NoError(err)
	return req, ref
}

func (s *LifecycleSuite) auditActions(requestID id.RequestID) []audit.ActionType {
	entries, err := s.auditStore.ListByEntity(s.ctx, audit.EntityRequest, requestID.String())
	s.Require().NoError(err)
	out := make([]audit.ActionType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ActionType)
	}
	return out
}

func stages(req *models.Request) []models.Stage {
	out := make([]models.Stage, 0, len(req.Lifecycle))
	for _, e := range req.Lifecycle {
		out = append(out, e.Stage)
	}
	return out
}

func (s *LifecycleSuite) TestCreateRequest() {
	s.Run("issues a sequential id and audits creation", func() {
		first := s.create("medium")
		second := s.create("low")

		s.Equal(id.RequestID("REQ-2026-000001"), first.ID)
		s.Equal(id.RequestID("REQ-2026-000002"), second.ID)
		s.Equal(models.StatusPending, first.Status)
		s.Equal([]models.Stage{models.StagePending}, stages(first))
		s.Equal(created.Add(defaultRequestTTL), first.ExpiryDate)
		s.Equal([]audit.ActionType{audit.ActionRequestCreated}, s.auditActions(first.ID))
		s.Empty(s.notifier.types())
	})

	s.Run("critical requests notify the hospital and admins", func() {
		s.SetupTest()
		req := s.create("critical")

		s.Require().Len(s.notifier.sent, 2)
		s.Equal(notification.AudienceHospital, s.notifier.sent[0].Audience)
		s.Equal(notification.TypeEmergency, s.notifier.sent[0].Type)
		s.Equal(req.HospitalID.String(), s.notifier.sent[0].RecipientID)
		s.Equal(notification.AudienceAdminBroadcast, s.notifier.sent[1].Audience)
		s.Empty(s.notifier.sent[1].RecipientID)
	})

	s.Run("rejects invalid input before writing", func() {
		s.SetupTest()
		_, err := s.service.CreateRequest(s.ctx, s.staff, CreateRequestInput{
			Patient: models.Patient{Name: "J. Doe", Age: 40, BloodType: id.BloodAPos}, Urgency: "urgent", OrganType: "kidney",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.CreateRequest(s.ctx, s.staff, CreateRequestInput{
			Patient: models.Patient{Name: "", Age: 40, BloodType: id.BloodAPos}, Urgency: "low", OrganType: "kidney",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		all, err := s.requests.List(s.ctx, requestStore.ListFilter{})
		s.Require().NoError(err)
		s.Empty(all)
	})

	s.Run("only staff of the owning hospital or admins may create", func() {
		s.SetupTest()
		donor := id.Actor{ID: id.NewUserID(), Role: id.RoleDonor}
		_, err := s.service.CreateRequest(s.ctx, donor, CreateRequestInput{Urgency: "low", OrganType: "kidney"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.CreateRequest(s.ctx, s.staff, CreateRequestInput{
			HospitalID: id.NewHospitalID(),
			Patient:    models.Patient{Name: "J. Doe", Age: 40, BloodType: id.BloodAPos}, Urgency: "low", OrganType: "kidney",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.CreateRequest(s.ctx, testutil.Admin(), CreateRequestInput{
			Patient: models.Patient{Name: "J. Doe", Age: 40, BloodType: id.BloodAPos}, Urgency: "low", OrganType: "kidney",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "admins must name the hospital")
	})
}

func (s *LifecycleSuite) TestFullLifecycle() {
	req, ref := s.ready()

	t, err := s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, ref, models.SurgeryDetails{
		Surgeon: "Dr. Grey", OperatingRoom: "OR-3", ScheduledDate: created.Add(48 * time.Hour),
	})
	s.Require().NoError(err)
	s.Equal(models.TransplantScheduled, t.Status)

	s.now = created.Add(72 * time.Hour)
	t, err = s.service.RecordOutcome(s.ctx, s.staff, t.ID, models.Outcome{Success: true, Notes: "stable"})
	s.Require().NoError(err)
	s.Equal(models.TransplantCompleted, t.Status)

	final, err := s.service.GetRequest(s.ctx, s.staff, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, final.Status)
	s.Require().NotNil(final.MatchedDonor)
	s.Equal(ref, *final.MatchedDonor)
	s.NoError(final.CheckInvariants())
	s.Equal([]models.Stage{
		models.StagePending, models.StageMatched, models.StageEligibilityValidated,
		models.StageConsentGiven, models.StageScheduled, models.StageCompleted,
	}, stages(final))
	s.Equal([]audit.ActionType{
		audit.ActionRequestCreated, audit.ActionMatch, audit.ActionEligibilityValidated,
		audit.ActionConsentGiven, audit.ActionSurgeryScheduled, audit.ActionOutcomeRecorded,
	}, s.auditActions(req.ID))

	stats, err := s.service.HospitalStats(s.ctx, s.staff, s.hospital)
	s.Require().NoError(err)
	s.Equal(1, stats.Completed)
	s.Equal(1, stats.Successful)
	s.Equal(100, stats.SuccessRate)
}

func (s *LifecycleSuite) TestSelectDonor() {
	s.Run("reject audits without mutating the request", func() {
		req := s.create("low")
		ref := id.RefToDonor(id.NewDonorID())

		got, err := s.service.SelectDonor(s.ctx, s.staff, req.ID, ref, SelectReject, "poor HLA match")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
		s.Nil(got.MatchedDonor)
		s.Len(got.Lifecycle, 1)
		s.False(s.pool.isMatched(ref))
		s.Equal([]audit.ActionType{audit.ActionRequestCreated, audit.ActionMatchRejected}, s.auditActions(req.ID))
	})

	s.Run("approve notifies the donor account", func() {
		s.SetupTest()
		req := s.create("low")
		ref := id.RefToProfile(id.NewUserID())
		s.pool.accounts[ref] = id.UserID(ref.ID)

		got, err := s.service.SelectDonor(s.ctx, s.staff, req.ID, ref, SelectApprove, "")
		s.Require().NoError(err)
		s.Equal(models.StatusMatched, got.Status)
		s.True(s.pool.isMatched(ref))
		s.Equal([]notification.Type{notification.TypeMatchFound}, s.notifier.types())
		s.Equal(ref.ID.String(), s.notifier.sent[0].RecipientID)
	})

	s.Run("approving a matched request is a conflict", func() {
		s.SetupTest()
		req, _ := s.matched()
		_, err := s.service.SelectDonor(s.ctx, s.staff, req.ID, id.RefToDonor(id.NewDonorID()), SelectApprove, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "cannot transition request from matched to matched")
	})

	s.Run("other hospitals are forbidden", func() {
		s.SetupTest()
		req := s.create("low")
		other := testutil.HospitalStaff(id.NewHospitalID())
		_, err := s.service.SelectDonor(s.ctx, other, req.ID, id.RefToDonor(id.NewDonorID()), SelectApprove, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown request is not found", func() {
		s.SetupTest()
		_, err := s.service.SelectDonor(s.ctx, s.staff, "REQ-2026-999999", id.RefToDonor(id.NewDonorID()), SelectApprove, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LifecycleSuite) TestEligibilityAndConsent() {
	s.Run("re-validating eligibility appends nothing", func() {
		req, _ := s.matched()
		first, err := s.service.ValidateEligibility(s.ctx, s.staff, req.ID, "")
		s.Require().NoError(err)
		second, err := s.service.ValidateEligibility(s.ctx, s.staff, req.ID, "")
		s.Require().NoError(err)
		s.Len(second.Lifecycle, len(first.Lifecycle))
		s.Equal(first.Version, second.Version)
	})

	s.Run("validating a pending request is a conflict", func() {
		s.SetupTest()
		req := s.create("low")
		_, err := s.service.ValidateEligibility(s.ctx, s.staff, req.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "cannot transition request from pending to eligibility_validated")
	})

	s.Run("rejecting eligibility needs a reason", func() {
		s.SetupTest()
		req, _ := s.matched()
		_, err := s.service.RejectEligibility(s.ctx, s.staff, req.ID, " ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		got, err := s.service.RejectEligibility(s.ctx, s.staff, req.ID, "crossmatch positive")
		s.Require().NoError(err)
		s.Equal(models.EligibilityRejected, got.EligibilityStatus)
	})

	s.Run("repeating a consent decision is a no-op and changing it conflicts", func() {
		s.SetupTest()
		req, _ := s.matched()
		first, err := s.service.RecordConsent(s.ctx, s.staff, req.ID, models.ConsentDenied, "family declined")
		s.Require().NoError(err)
		again, err := s.service.RecordConsent(s.ctx, s.staff, req.ID, models.ConsentDenied, "")
		s.Require().NoError(err)
		s.Len(again.Lifecycle, len(first.Lifecycle))

		_, err = s.service.RecordConsent(s.ctx, s.staff, req.ID, models.ConsentGiven, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal([]audit.ActionType{audit.ActionRequestCreated, audit.ActionMatch, audit.ActionConsentDenied}, s.auditActions(req.ID))
	})

	s.Run("consent after scheduling is a conflict", func() {
		s.SetupTest()
		req, ref := s.ready()
		_, err := s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, ref, models.SurgeryDetails{
			Surgeon: "Dr. Grey", OperatingRoom: "OR-1", ScheduledDate: created,
		})
		s.Require().NoError(err)
		_, err = s.service.RecordConsent(s.ctx, s.staff, req.ID, models.ConsentGiven, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *LifecycleSuite) TestScheduleSurgery() {
	details := models.SurgeryDetails{Surgeon: "Dr. Grey", OperatingRoom: "OR-1", ScheduledDate: created.Add(time.Hour)}

	s.Run("requires the matched donor", func() {
		req, _ := s.ready()
		_, err := s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, id.RefToDonor(id.NewDonorID()), details)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("requires consent", func() {
		s.SetupTest()
		req, ref := s.matched()
		_, err := s.service.ValidateEligibility(s.ctx, s.staff, req.ID, "")
		s.Require().NoError(err)
		_, err = s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, ref, details)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "cannot transition request from eligibility_validated to scheduled")
	})

	s.Run("validates details before loading", func() {
		s.SetupTest()
		req, ref := s.ready()
		_, err := s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, ref, models.SurgeryDetails{OperatingRoom: "OR-1", ScheduledDate: created})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("a second schedule is rejected and only one transplant exists", func() {
		s.SetupTest()
		req, ref := s.ready()
		_, err := s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, ref, details)
		s.Require().NoError(err)
		_, err = s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, ref, details)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		all, err := s.transplants.ListByHospital(s.ctx, s.hospital)
		s.Require().NoError(err)
		s.Len(all, 1)
	})
}

func (s *LifecycleSuite) TestCancelRequest() {
	s.Run("releases the donor and cancels the transplant", func() {
		req, ref := s.ready()
		t, err := s.service.ScheduleSurgery(s.ctx, s.staff, req.ID, ref, models.SurgeryDetails{
			Surgeon: "Dr. Grey", OperatingRoom: "OR-1", ScheduledDate: created,
		})
		s.Require().NoError(err)

		got, err := s.service.CancelRequest(s.ctx, s.staff, req.ID, "patient transferred")
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, got.Status)
		s.Nil(got.MatchedDonor)
		s.NoError(got.CheckInvariants())
		s.False(s.pool.isMatched(ref))
		s.Equal(models.StageCancelled, got.LastEntry().Stage)
		s.Equal(models.StageScheduled, got.Lifecycle[len(got.Lifecycle)-2].Stage)

		stored, err := s.transplants.FindByID(s.ctx, t.ID)
		s.Require().NoError(err)
		s.Equal(models.TransplantCancelled, stored.Status)
		s.Contains(s.notifier.types(), notification.TypeRequestClosed)
	})

	s.Run("requires a reason", func() {
		s.SetupTest()
		req := s.create("low")
		_, err := s.service.CancelRequest(s.ctx, s.staff, req.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("terminal requests cannot be cancelled", func() {
		s.SetupTest()
		req := s.create("low")
		_, err := s.service.CancelRequest(s.ctx, s.staff, req.ID, "duplicate")
		s.Require().NoError(err)
		_, err = s.service.CancelRequest(s.ctx, s.staff, req.ID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "cannot transition request from cancelled to cancelled")
	})
}

func (s *LifecycleSuite) TestExpireDue() {
	stale := s.create("low")
	matched, _ := s.matched()
	s.now = created.Add(10 * 24 * time.Hour)
	fresh := s.create("low")

	n, err := s.service.ExpireDue(s.ctx, created.Add(defaultRequestTTL+time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.service.GetRequest(s.ctx, s.staff, stale.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)
	s.Equal(models.StageExpired, got.LastEntry().Stage)
	s.Contains(s.auditActions(stale.ID), audit.ActionRequestExpired)

	got, err = s.service.GetRequest(s.ctx, s.staff, matched.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusMatched, got.Status)

	got, err = s.service.GetRequest(s.ctx, s.staff, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)

	n, err = s.service.ExpireDue(s.ctx, created.Add(defaultRequestTTL+time.Hour))
	s.Require().NoError(err)
	s.Zero(n)
}

// unreadableRequests fails reads of the listed requests.
type unreadableRequests struct {
	*requestStore.InMemory
	broken map[id.RequestID]bool
}

func (u unreadableRequests) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	if u.broken[requestID] {
		return nil, errors.New("storage: page checksum mismatch")
	}
	return u.InMemory.FindByID(ctx, requestID)
}

func (s *LifecycleSuite) TestExpireDue_FailuresDoNotStarveLaterRequests() {
	broken := make(map[id.RequestID]bool, expiryBatchSize)
	for range expiryBatchSize {
		broken[s.create("low").ID] = true
	}
	s.now = created.Add(time.Minute)
	behind := s.create("low")

	store := unreadableRequests{InMemory: s.requests, broken: broken}
	svc := New(store, s.transplants, sequence.NewMemory(), s.pool, tx.NewMemoryRunner(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
	)

	sweepAt := created.Add(defaultRequestTTL + time.Hour)
	n, err := svc.ExpireDue(s.ctx, sweepAt)
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.requests.FindByID(s.ctx, behind.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)
}

func (s *LifecycleSuite) TestAuditFailureRollsBack() {
	req := s.create("low")
	ref := id.RefToDonor(id.NewDonorID())
	svc := s.newService(WithAuditPublisher(failingPublisher{}))

	_, err := svc.SelectDonor(s.ctx, s.staff, req.ID, ref, SelectApprove, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	got, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Len(got.Lifecycle, 1)
	s.False(s.pool.isMatched(ref), "donor reservation must roll back with the request")
}

func (s *LifecycleSuite) TestListRequestsScopesHospitalStaff() {
	mine := s.create("low")
	other := id.NewHospitalID()
	_, err := s.service.CreateRequest(s.ctx, testutil.Admin(), CreateRequestInput{
		HospitalID: other,
		Patient:    models.Patient{Name: "R. Roe", Age: 30, BloodType: id.BloodONeg},
		Urgency:    "low", OrganType: "liver",
	})
	s.Require().NoError(err)

	got, err := s.service.ListRequests(s.ctx, s.staff, requestStore.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(mine.ID, got[0].ID)

	_, err = s.service.ListRequests(s.ctx, s.staff, requestStore.ListFilter{HospitalID: other})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	all, err := s.service.ListRequests(s.ctx, testutil.Admin(), requestStore.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 2)
}

func TestSelectDonor_ConcurrentApprovals(t *testing.T) {
	testutil.Given(t, "two requests racing for the same donor", func(t *testing.T) {
		hospital := id.NewHospitalID()
		staff := testutil.HospitalStaff(hospital)
		svc := New(requestStore.NewInMemory(), transplantStore.NewInMemory(), sequence.NewMemory(), newMemoryPool(), tx.NewMemoryRunner())
		in := CreateRequestInput{
			Patient: models.Patient{Name: "P", Age: 50, BloodType: id.BloodONeg}, Urgency: "high", OrganType: "liver",
		}
		var reqs []*models.Request
		for range 8 {
			r, err := svc.CreateRequest(context.Background(), staff, in)
			require.NoError(t, err)
			reqs = append(reqs, r)
		}
		donor := id.RefToDonor(id.NewDonorID())

		testutil.When(t, "all approve concurrently", func(t *testing.T) {
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for _, r := range reqs {
				wg.Add(1)
				go func(requestID id.RequestID) {
					defer wg.Done()
					_, err := svc.SelectDonor(context.Background(), staff, requestID, donor, SelectApprove, "")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case dErrors.HasCode(err, dErrors.CodeConflict):
						conflicts++
					}
				}(r.ID)
			}
			wg.Wait()

			testutil.Then(t, "exactly one wins and the rest get a retryable conflict", func(t *testing.T) {
				assert.Equal(t, 1, wins)
				assert.Equal(t, len(reqs)-1, conflicts)
			})
		})
	})

	testutil.Given(t, "one request approved with different donors at once", func(t *testing.T) {
		staff := testutil.HospitalStaff(id.NewHospitalID())
		svc := New(requestStore.NewInMemory(), transplantStore.NewInMemory(), sequence.NewMemory(), newMemoryPool(), tx.NewMemoryRunner())
		req, err := svc.CreateRequest(context.Background(), staff, CreateRequestInput{
			Patient: models.Patient{Name: "P", Age: 50, BloodType: id.BloodONeg}, Urgency: "high", OrganType: "liver",
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 6)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.SelectDonor(context.Background(), staff, req.ID, id.RefToDonor(id.NewDonorID()), SelectApprove, "")
			}(i)
		}
		wg.Wait()

		testutil.Then(t, "only one donor is matched", func(t *testing.T) {
			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.True(t, dErrors.IsRetryable(err))
			}
			assert.Equal(t, 1, succeeded)
			got, err := svc.GetRequest(context.Background(), staff, req.ID)
			require.NoError(t, err)
			assert.Len(t, got.Lifecycle, 2)
		})
	})
}

func TestSelectDonor_IncompatibleCandidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	seq := mocks.NewMockSequence(ctrl)
	pool := mocks.NewMockDonorPool(ctrl)
	checker := mocks.NewMockCompatibilityChecker(ctrl)

	staff := testutil.HospitalStaff(id.NewHospitalID())
	svc := New(requestStore.NewInMemory(), transplantStore.NewInMemory(), seq, pool, tx.NewMemoryRunner(),
		WithCompatibilityChecker(checker), WithClock(func() time.Time { return created }))

	seq.EXPECT().Next(gomock.Any(), 2026).Return(int64(41), nil)
	req, err := svc.CreateRequest(context.Background(), staff, CreateRequestInput{
		Patient: models.Patient{Name: "P", Age: 50, BloodType: id.BloodAPos}, Urgency: "high", OrganType: "heart",
	})
	require.NoError(t, err)
	assert.Equal(t, id.RequestID("REQ-2026-000041"), req.ID)

	ref := id.RefToDonor(id.NewDonorID())
	checker.EXPECT().CheckCompatible(gomock.Any(), gomock.Any(), ref).
		Return(dErrors.New(dErrors.CodeValidation, "donor blood type B+ is not compatible with A+"))
	// Reserve must not be called for an incompatible candidate.
	pool.EXPECT().Reserve(gomock.Any(), gomock.Any()).Times(0)

	_, err = svc.SelectDonor(context.Background(), staff, req.ID, ref, SelectApprove, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCreateRequest_SequenceFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	seq := mocks.NewMockSequence(ctrl)
	seq.EXPECT().Next(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("redis: connection refused"))

	svc := New(requestStore.NewInMemory(), transplantStore.NewInMemory(), seq, mocks.NewMockDonorPool(ctrl), tx.NewMemoryRunner())
	_, err := svc.CreateRequest(context.Background(), testutil.HospitalStaff(id.NewHospitalID()), CreateRequestInput{
		Patient: models.Patient{Name: "P", Age: 50, BloodType: id.BloodAPos}, Urgency: "high", OrganType: "heart",
	})
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
}
