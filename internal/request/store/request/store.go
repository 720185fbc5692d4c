// Package request persists Request aggregates and their lifecycle entries.
//
// Error Contract:
//   - ErrNotFound when the request does not exist
//   - ErrAlreadyExists when the id is taken
//   - ErrConflict when a versioned update lost to a concurrent writer
//   - ErrInvalidState when a conditional flag update's preconditions do not hold
package request

import (
	"time"

	"transplant/internal/request/models"
	id "transplant/pkg/domain"
)

// ListFilter narrows List. Zero values match everything. List returns at
// most one page; aggregate reads use the dedicated queries below it.
type ListFilter struct {
	HospitalID id.HospitalID
	Status     models.Status
	Urgency    models.Urgency
	Limit      int
}

func (f ListFilter) matches(r *models.Request) bool {
	if !f.HospitalID.IsNil() && r.HospitalID != f.HospitalID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Urgency != "" && r.Urgency != f.Urgency {
		return false
	}
	return true
}

const defaultListLimit = 500

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > defaultListLimit {
		return defaultListLimit
	}
	return f.Limit
}

// expirable is shared by both stores so the sweep sees the same set.
func expirable(r *models.Request, now time.Time) bool {
	return r.Status == models.StatusPending && !r.ExpiryDate.After(now)
}

// ExpiryKey is the sweep's position in (expiry_date, id) order. The zero key
// starts from the oldest expirable request.
type ExpiryKey struct {
	ExpiryDate time.Time
	ID         id.RequestID
}

func (k ExpiryKey) isZero() bool {
	return k.ExpiryDate.IsZero() && k.ID == ""
}

func (k ExpiryKey) less(o ExpiryKey) bool {
	if k.ExpiryDate.Equal(o.ExpiryDate) {
		return k.ID < o.ID
	}
	return k.ExpiryDate.Before(o.ExpiryDate)
}

func keyOf(r *models.Request) ExpiryKey {
	return ExpiryKey{ExpiryDate: r.ExpiryDate, ID: r.ID}
}

// revealable matches the request that lets hospitalID read ref's
// confidential data.
func revealable(r *models.Request, hospitalID id.HospitalID, ref id.DonorRef) bool {
	return r.HospitalID == hospitalID && r.IsMatchedTo(ref) && r.CanReveal()
}

// openUnbreached matches unresolved requests of one urgency created at or
// before a cutoff with no breach recorded.
func openUnbreached(r *models.Request, urgency models.Urgency, createdBefore time.Time) bool {
	return (r.Status == models.StatusPending || r.Status == models.StatusMatched) &&
		r.Urgency == urgency &&
		r.SLABreachedAt == nil &&
		!r.CreatedAt.After(createdBefore)
}
