package service

import (
	"context"
	"fmt"
	"time"

	"transplant/internal/notification"
	"transplant/internal/request/models"
	requestStore "transplant/internal/request/store/request"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
)

const expiryBatchSize = 200

// ExpireDue moves every pending request whose expiry date has passed to
// expired. Each request commits in its own transaction; a failure on one is
// logged and counted and does not stop the sweep. Candidates are read in
// pages keyed past the last one seen, so requests that keep failing never
// hide the ones behind them. The returned error is only set when a page of
// candidates cannot be read.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.startSpan(ctx, "expire_due", "")
	defer span.End()
	defer s.metrics.ObserveOperation("expire_due", time.Now())

	now = now.UTC()
	expired := 0
	var after requestStore.ExpiryKey
	for ctx.Err() == nil {
		page, err := s.requests.ListExpirable(ctx, now, after, expiryBatchSize)
		if err != nil {
			return expired, translate(err, "request")
		}
		for _, key := range page {
			if ctx.Err() != nil {
				break
			}
			if s.expireDue(ctx, key.ID, now) {
				expired++
			}
		}
		if len(page) < expiryBatchSize {
			break
		}
		after = page[len(page)-1]
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired requests", "count", expired)
	}
	return expired, nil
}

// expireDue expires one candidate and reports whether it did.
func (s *Service) expireDue(ctx context.Context, requestID id.RequestID, now time.Time) bool {
	req, err := s.expireOne(ctx, requestID, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			// Moved on since listing; another writer got there first.
			s.logger.DebugContext(ctx, "skipped expiry", "request_id", requestID, "error", err)
			return false
		}
		s.metrics.IncExpiryFailure()
		s.logger.ErrorContext(ctx, "failed to expire request", "request_id", requestID, "error", err)
		return false
	}
	s.metrics.IncExpired()
	s.notify(ctx, notification.ToHospital(req.HospitalID.String(), notification.TypeRequestClosed,
		"Request expired",
		fmt.Sprintf("Request %s expired without a match", req.ID), requestRelated(req)))
	return true
}

func (s *Service) expireOne(ctx context.Context, requestID id.RequestID, now time.Time) (*models.Request, error) {
	var req *models.Request
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return translate(err, "request")
		}
		if err := req.CanExpire(now); err != nil {
			return err
		}
		from := req.CurrentStage()
		req.ApplyExpiry(now)
		if err := s.save(txCtx, "expire", req, from); err != nil {
			return err
		}
		return s.auditRequest(txCtx, id.SystemActor, audit.ActionRequestExpired, req,
			"expired at "+req.ExpiryDate.Format(time.RFC3339), now)
	})
	return req, err
}
