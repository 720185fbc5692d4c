package transplant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	"transplant/pkg/platform/sentinel"
)

type TransplantStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *TransplantStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestTransplantStoreSuite(t *testing.T) {
	suite.Run(t, new(TransplantStoreSuite))
}

func (s *TransplantStoreSuite) newTransplant(requestID id.RequestID, hospital id.HospitalID) *models.Transplant {
	return &models.Transplant{
		ID:         id.NewTransplantID(),
		RequestID:  requestID,
		HospitalID: hospital,
		Donor:      id.RefToDonor(id.NewDonorID()),
		Status:     models.TransplantScheduled,
		CreatedAt:  time.Now(),
	}
}

func (s *TransplantStoreSuite) TestOnePerRequest() {
	hospital := id.NewHospitalID()
	first := s.newTransplant("REQ-2026-000001", hospital)
	s.Require().NoError(s.store.Create(s.ctx, first))

	dup := s.newTransplant("REQ-2026-000001", hospital)
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyExists)

	found, err := s.store.FindByRequest(s.ctx, "REQ-2026-000001")
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)
}

func (s *TransplantStoreSuite) TestUpdateStatusIsGuarded() {
	t := s.newTransplant("REQ-2026-000002", id.NewHospitalID())
	s.Require().NoError(s.store.Create(s.ctx, t))

	t.ApplyOutcome(models.Outcome{Success: true}, time.Now())
	s.Require().NoError(s.store.UpdateStatus(s.ctx, t, models.TransplantScheduled))
	s.ErrorIs(s.store.UpdateStatus(s.ctx, t, models.TransplantScheduled), sentinel.ErrConflict)

	_, err := s.store.FindByID(s.ctx, id.NewTransplantID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *TransplantStoreSuite) TestStats() {
	hospital := id.NewHospitalID()
	_, err := s.store.FindStats(s.ctx, hospital)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.SaveStats(s.ctx, models.HospitalStats{HospitalID: hospital, Completed: 2, Successful: 1, SuccessRate: 50}))
	stats, err := s.store.FindStats(s.ctx, hospital)
	s.Require().NoError(err)
	s.Equal(50, stats.SuccessRate)
}
