package service

import (
	"context"
	"fmt"
	"time"

	"transplant/internal/donor/models"
	id "transplant/pkg/domain"
)

// Pool reserves donors for the request lifecycle. Both registries use a
// conditional status write, so two requests racing for the same donor
// cannot both win.
type Pool struct {
	donors   DonorStore
	profiles ProfileStore
	clock    func() time.Time
}

func NewPool(donors DonorStore, profiles ProfileStore) *Pool {
	return &Pool{donors: donors, profiles: profiles, clock: time.Now}
}

// Reserve moves an active candidate to matched and returns the account to
// notify.
func (p *Pool) Reserve(ctx context.Context, ref id.DonorRef) (id.UserID, error) {
	now := p.clock().UTC()
	if donorID, ok := ref.Donor(); ok {
		d, err := p.donors.FindByID(ctx, donorID)
		if err != nil {
			return id.UserID{}, err
		}
		if err := p.donors.UpdateStatus(ctx, donorID, models.StatusActive, models.StatusMatched, now); err != nil {
			return id.UserID{}, err
		}
		return d.UserID, nil
	}
	if userID, ok := ref.Profile(); ok {
		if err := p.profiles.UpdateStatus(ctx, userID, models.StatusActive, models.StatusMatched, now); err != nil {
			return id.UserID{}, err
		}
		return userID, nil
	}
	return id.UserID{}, fmt.Errorf("unknown donor kind %q", ref.Kind)
}

// Release returns a matched candidate to the active pool.
func (p *Pool) Release(ctx context.Context, ref id.DonorRef) error {
	now := p.clock().UTC()
	if donorID, ok := ref.Donor(); ok {
		return p.donors.UpdateStatus(ctx, donorID, models.StatusMatched, models.StatusActive, now)
	}
	if userID, ok := ref.Profile(); ok {
		return p.profiles.UpdateStatus(ctx, userID, models.StatusMatched, models.StatusActive, now)
	}
	return fmt.Errorf("unknown donor kind %q", ref.Kind)
}
