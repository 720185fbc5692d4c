// Package transplant persists transplant records and hospital statistics.
//
// Error Contract:
//   - ErrNotFound when the record does not exist
//   - ErrAlreadyExists when a request already has a transplant
//   - ErrConflict when a status-guarded update lost to a concurrent writer
package transplant

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
)

// InMemory stores transplants and stats in memory for tests/dev.
type InMemory struct {
	mu          sync.RWMutex
	transplants map[id.TransplantID]*models.Transplant
	byRequest   map[id.RequestID]id.TransplantID
	stats       map[id.HospitalID]models.HospitalStats
}

func NewInMemory() *InMemory {
	return &InMemory{
		transplants: make(map[id.TransplantID]*models.Transplant),
		byRequest:   make(map[id.RequestID]id.TransplantID),
		stats:       make(map[id.HospitalID]models.HospitalStats),
	}
}

func (s *InMemory) Create(ctx context.Context, t *models.Transplant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byRequest[t.RequestID]; ok {
		return fmt.Errorf("transplant for request %s: %w", t.RequestID, sentinel.ErrAlreadyExists)
	}
	s.transplants[t.ID] = t.Clone()
	s.byRequest[t.RequestID] = t.ID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.transplants, t.ID)
		delete(s.byRequest, t.RequestID)
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, transplantID id.TransplantID) (*models.Transplant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transplants[transplantID]
	if !ok {
		return nil, fmt.Errorf("transplant %s: %w", transplantID, sentinel.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *InMemory) FindByRequest(_ context.Context, requestID id.RequestID) (*models.Transplant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tid, ok := s.byRequest[requestID]
	if !ok {
		return nil, fmt.Errorf("transplant for request %s: %w", requestID, sentinel.ErrNotFound)
	}
	return s.transplants[tid].Clone(), nil
}

// UpdateStatus persists t if the stored status still equals from.
func (s *InMemory) UpdateStatus(ctx context.Context, t *models.Transplant, from models.TransplantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.transplants[t.ID]
	if !ok {
		return fmt.Errorf("transplant %s: %w", t.ID, sentinel.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("transplant %s is %s: %w", t.ID, current.Status, sentinel.ErrConflict)
	}
	s.transplants[t.ID] = t.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.transplants[t.ID] = current
	})
	return nil
}

func (s *InMemory) ListByHospital(_ context.Context, hospitalID id.HospitalID) ([]*models.Transplant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transplant, 0)
	for _, t := range s.transplants {
		if t.HospitalID == hospitalID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) SaveStats(ctx context.Context, stats models.HospitalStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.stats[stats.HospitalID]
	s.stats[stats.HospitalID] = stats
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.stats[stats.HospitalID] = prev
		} else {
			delete(s.stats, stats.HospitalID)
		}
	})
	return nil
}

func (s *InMemory) FindStats(_ context.Context, hospitalID id.HospitalID) (models.HospitalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[hospitalID]
	if !ok {
		return models.HospitalStats{}, fmt.Errorf("stats for hospital %s: %w", hospitalID, sentinel.ErrNotFound)
	}
	return stats, nil
}
