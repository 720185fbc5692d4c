// Package profile persists public donor profiles.
//
// Error Contract:
//   - ErrNotFound when the profile does not exist
//   - ErrAlreadyExists when the user already has a profile
//   - ErrConflict when a status-guarded update finds a different status
package profile

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

type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.UserID]*models.PublicProfile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.UserID]*models.PublicProfile)}
}

func (s *InMemory) Create(ctx context.Context, p *models.PublicProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return fmt.Errorf("profile %s: %w", p.UserID, sentinel.ErrAlreadyExists)
	}
	s.profiles[p.UserID] = p.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.profiles, p.UserID)
	})
	return nil
}

func (s *InMemory) FindByUserID(_ context.Context, userID id.UserID) (*models.PublicProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

// List returns profiles oldest first. An empty status matches all.
func (s *InMemory) List(_ context.Context, status models.Status) ([]*models.PublicProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PublicProfile
	for _, p := range s.profiles {
		if status == "" || p.Status == status {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) UpdateStatus(ctx context.Context, userID id.UserID, from, to models.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.profiles[userID]
	if !ok {
		return fmt.Errorf("profile %s: %w", userID, sentinel.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("profile %s is %s, not %s: %w", userID, current.Status, from, sentinel.ErrConflict)
	}
	next := current.Clone()
	next.Status = to
	next.UpdatedAt = now.UTC()
	s.profiles[userID] = next
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.profiles[userID] = current
	})
	return nil
}
