package donor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"transplant/internal/donor/models"
	id "transplant/pkg/domain"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
)

// InMemory stores donors in memory for tests/dev.
type InMemory struct {
	mu           sync.RWMutex
	donors       map[id.DonorID]*models.Donor
	byUser       map[id.UserID]id.DonorID
	confidential map[id.DonorID]models.ConfidentialRecord
}

func NewInMemory() *InMemory {
	return &InMemory{
		donors:       make(map[id.DonorID]*models.Donor),
		byUser:       make(map[id.UserID]id.DonorID),
		confidential: make(map[id.DonorID]models.ConfidentialRecord),
	}
}

func (s *InMemory) Create(ctx context.Context, d *models.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donors[d.ID]; ok {
		return fmt.Errorf("donor %s: %w", d.ID, sentinel.ErrAlreadyExists)
	}
	if !d.UserID.IsNil() {
		if _, ok := s.byUser[d.UserID]; ok {
			return fmt.Errorf("donor for user %s: %w", d.UserID, sentinel.ErrAlreadyExists)
		}
		s.byUser[d.UserID] = d.ID
	}
	s.donors[d.ID] = d.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.donors, d.ID)
		if !d.UserID.IsNil() {
			delete(s.byUser, d.UserID)
		}
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, donorID id.DonorID) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[donorID]
	if !ok {
		return nil, fmt.Errorf("donor %s: %w", donorID, sentinel.ErrNotFound)
	}
	return d.Clone(), nil
}

func (s *InMemory) FindByUserID(ctx context.Context, userID id.UserID) (*models.Donor, error) {
	s.mu.RLock()
	donorID, ok := s.byUser[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("donor for user %s: %w", userID, sentinel.ErrNotFound)
	}
	return s.FindByID(ctx, donorID)
}

// List returns donors oldest first.
func (s *InMemory) List(_ context.Context, filter ListFilter) ([]*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Donor, 0, len(s.donors))
	for _, d := range s.donors {
		if filter.matches(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.offset() >= len(out) {
		return []*models.Donor{}, nil
	}
	out = out[filter.offset():]
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

// UpdateStatus moves the donor from one status to another only if it is
// still in from.
func (s *InMemory) UpdateStatus(ctx context.Context, donorID id.DonorID, from, to models.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.donors[donorID]
	if !ok {
		return fmt.Errorf("donor %s: %w", donorID, sentinel.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("donor %s is %s, not %s: %w", donorID, current.Status, from, sentinel.ErrConflict)
	}
	next := current.Clone()
	next.Status = to
	next.UpdatedAt = now.UTC()
	s.donors[donorID] = next
	tx.OnRollback(ctx, func() { s.put(current) })
	return nil
}

func (s *InMemory) UpsertConsentRequest(ctx context.Context, donorID id.DonorID, cr models.ConsentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.donors[donorID]
	if !ok {
		return fmt.Errorf("donor %s: %w", donorID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	replaced := false
	for i, existing := range next.ConsentRequests {
		if existing.HospitalID != cr.HospitalID {
			continue
		}
		if !reopenable(existing) {
			return fmt.Errorf("consent request from %s is %s: %w", cr.HospitalID, existing.Status, sentinel.ErrAlreadyExists)
		}
		next.ConsentRequests[i] = cr
		replaced = true
	}
	if !replaced {
		next.ConsentRequests = append(next.ConsentRequests, cr)
	}
	s.donors[donorID] = next
	tx.OnRollback(ctx, func() { s.put(current) })
	return nil
}

// RespondConsentRequest stores the answer only while the request is pending.
func (s *InMemory) RespondConsentRequest(ctx context.Context, donorID id.DonorID, cr models.ConsentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.donors[donorID]
	if !ok {
		return fmt.Errorf("donor %s: %w", donorID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	for i, existing := range next.ConsentRequests {
		if existing.HospitalID != cr.HospitalID {
			continue
		}
		if existing.Status != models.ConsentRequestPending {
			return fmt.Errorf("consent request from %s is %s: %w", cr.HospitalID, existing.Status, sentinel.ErrConflict)
		}
		next.ConsentRequests[i] = cr
		s.donors[donorID] = next
		tx.OnRollback(ctx, func() { s.put(current) })
		return nil
	}
	return fmt.Errorf("consent request from %s: %w", cr.HospitalID, sentinel.ErrNotFound)
}

func (s *InMemory) SaveConfidential(ctx context.Context, rec models.ConfidentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donors[rec.DonorID]; !ok {
		return fmt.Errorf("donor %s: %w", rec.DonorID, sentinel.ErrNotFound)
	}
	prev, existed := s.confidential[rec.DonorID]
	s.confidential[rec.DonorID] = rec
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.confidential[rec.DonorID] = prev
		} else {
			delete(s.confidential, rec.DonorID)
		}
	})
	return nil
}

func (s *InMemory) FindConfidential(_ context.Context, donorID id.DonorID) (*models.ConfidentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.confidential[donorID]
	if !ok {
		return nil, fmt.Errorf("confidential record for %s: %w", donorID, sentinel.ErrNotFound)
	}
	return &rec, nil
}

func (s *InMemory) put(d *models.Donor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[d.ID] = d
}
