package service

import (
	"context"
	"errors"

	"transplant/internal/request/models"
	requestStore "transplant/internal/request/store/request"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/sentinel"
)

func (s *Service) GetRequest(ctx context.Context, actor id.Actor, requestID id.RequestID) (*models.Request, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, actor, requestID)
}

// ListRequests returns requests visible to actor. Hospital staff only ever
// see their own hospital, whatever the filter says.
func (s *Service) ListRequests(ctx context.Context, actor id.Actor, filter requestStore.ListFilter) ([]*models.Request, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if !filter.HospitalID.IsNil() && filter.HospitalID != actor.HospitalID {
			return nil, dErrors.New(dErrors.CodeForbidden, "actor may not list another hospital's requests")
		}
		filter.HospitalID = actor.HospitalID
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid status filter")
	}
	reqs, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, translate(err, "request")
	}
	return reqs, nil
}

// HospitalStats returns the stored success-rate record. A hospital with no
// recorded outcomes gets zeroed stats rather than NotFound.
func (s *Service) HospitalStats(ctx context.Context, actor id.Actor, hospitalID id.HospitalID) (models.HospitalStats, error) {
	if err := requireStaff(actor); err != nil {
		return models.HospitalStats{}, err
	}
	if !actor.ActsFor(hospitalID) {
		return models.HospitalStats{}, dErrors.New(dErrors.CodeForbidden, "actor may not read another hospital's stats")
	}
	stats, err := s.transplants.FindStats(ctx, hospitalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.HospitalStats{HospitalID: hospitalID}, nil
		}
		return models.HospitalStats{}, translate(err, "hospital stats")
	}
	return stats, nil
}
