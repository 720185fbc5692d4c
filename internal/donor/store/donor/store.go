// Package donor persists hospital-registered donors, their consent requests
// and their confidential records.
//
// Error Contract:
//   - ErrNotFound when the donor, consent request or confidential record does not exist
//   - ErrAlreadyExists when the donor id or linked user is taken, or a consent
//     request is already open or accepted
//   - ErrConflict when a status-guarded update finds a different status
package donor

import (
	"slices"

	"transplant/internal/donor/models"
	id "transplant/pkg/domain"
)

// ListFilter narrows List. Zero values match everything. List returns at
// most MaxPage donors per call; callers that need the whole population page
// with Offset.
type ListFilter struct {
	Status       models.Status
	RegisteredBy id.HospitalID
	// Organ keeps donors offering this organ.
	Organ id.OrganType
	// BloodTypes keeps donors of any listed type.
	BloodTypes []id.BloodType
	Limit      int
	Offset     int
}

func (f ListFilter) matches(d *models.Donor) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if !f.RegisteredBy.IsNil() && d.RegisteredBy != f.RegisteredBy {
		return false
	}
	if f.Organ != "" && !id.ContainsOrgan(d.OrganPreferences, f.Organ) {
		return false
	}
	if len(f.BloodTypes) > 0 && !slices.Contains(f.BloodTypes, d.BloodType) {
		return false
	}
	return true
}

// MaxPage caps a single List call.
const MaxPage = 1000

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > MaxPage {
		return MaxPage
	}
	return f.Limit
}

func (f ListFilter) offset() int {
	return max(f.Offset, 0)
}

// reopenable reports whether a hospital may file a fresh consent request
// over an existing one.
func reopenable(existing models.ConsentRequest) bool {
	return existing.Status == models.ConsentRequestRejected
}
