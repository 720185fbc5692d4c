package request

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
)

// InMemory stores requests in memory for tests/dev. Writes register undo
// steps so a failed MemoryRunner transaction leaves no trace.
type InMemory struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
}

func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[id.RequestID]*models.Request)}
}

func (s *InMemory) Create(ctx context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("request %s: %w", req.ID, sentinel.ErrAlreadyExists)
	}
	s.requests[req.ID] = req.Clone()
	tx.OnRollback(ctx, func() { s.delete(req.ID) })
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *InMemory) List(_ context.Context, filter ListFilter) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Request, 0)
	for _, r := range s.requests {
		if filter.matches(r) {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

// Transition persists req if the stored version still equals req.Version.
// On success req.Version is advanced.
func (s *InMemory) Transition(ctx context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[req.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", req.ID, sentinel.ErrNotFound)
	}
	if current.Version != req.Version {
		return fmt.Errorf("request %s version %d: %w", req.ID, req.Version, sentinel.ErrConflict)
	}
	next := req.Clone()
	next.Version++
	// Breach and reveal are written by their own conditional updates.
	next.SLABreachedAt = current.SLABreachedAt
	next.DelayReason = current.DelayReason
	next.ConfidentialDataRevealed = current.ConfidentialDataRevealed
	s.requests[req.ID] = next
	req.Version = next.Version
	tx.OnRollback(ctx, func() { s.put(current) })
	return nil
}

// RecordBreach sets the breach only if none is recorded. It reports whether
// this call recorded it.
func (s *InMemory) RecordBreach(ctx context.Context, requestID id.RequestID, at time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[requestID]
	if !ok {
		return false, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	if !next.RecordBreach(at, reason) {
		return false, nil
	}
	s.requests[requestID] = next
	tx.OnRollback(ctx, func() { s.put(current) })
	return true, nil
}

// MarkRevealed flips the reveal flag once, only while eligibility is
// validated and consent given.
func (s *InMemory) MarkRevealed(ctx context.Context, requestID id.RequestID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[requestID]
	if !ok {
		return false, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if current.ConfidentialDataRevealed {
		return false, nil
	}
	if !current.CanReveal() {
		return false, fmt.Errorf("request %s: %w", requestID, sentinel.ErrInvalidState)
	}
	next := current.Clone()
	next.ConfidentialDataRevealed = true
	s.requests[requestID] = next
	tx.OnRollback(ctx, func() { s.put(current) })
	return true, nil
}

// ListExpirable returns up to limit expirable requests strictly after the
// given key, oldest expiry first.
func (s *InMemory) ListExpirable(_ context.Context, now time.Time, after ExpiryKey, limit int) ([]ExpiryKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []ExpiryKey
	for _, r := range s.requests {
		k := keyOf(r)
		if expirable(r, now) && (after.isZero() || after.less(k)) {
			due = append(due, k)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].less(due[j]) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// CountBreaches counts every request of the hospital and those with a
// recorded breach.
func (s *InMemory) CountBreaches(_ context.Context, hospitalID id.HospitalID) (total, breached int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.HospitalID != hospitalID {
			continue
		}
		total++
		if r.SLABreachedAt != nil {
			breached++
		}
	}
	return total, breached, nil
}

// FindRevealable returns the newest request of hospitalID matched to ref
// whose gates allow a reveal.
func (s *InMemory) FindRevealable(_ context.Context, hospitalID id.HospitalID, ref id.DonorRef) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []*models.Request
	for _, r := range s.requests {
		if revealable(r, hospitalID, ref) {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("revealable request for %s: %w", ref.ID, sentinel.ErrNotFound)
	}
	sortNewestFirst(found)
	return found[0].Clone(), nil
}

// ListOpenUnbreached returns every pending or matched request of the urgency
// created at or before createdBefore with no recorded breach. It is not
// paged.
func (s *InMemory) ListOpenUnbreached(_ context.Context, urgency models.Urgency, createdBefore time.Time) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Request, 0)
	for _, r := range s.requests {
		if openUnbreached(r, urgency, createdBefore) {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) put(r *models.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
}

func (s *InMemory) delete(requestID id.RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, requestID)
}

func sortNewestFirst(rs []*models.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID > rs[j].ID
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}
