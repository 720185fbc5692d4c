// Package matching finds and ranks donor candidates for a pending request.
//
// Candidates come from two registries: hospital-registered donors and
// self-registered public profiles. Both are normalized into Candidate before
// filtering and scoring so the rules see one shape.
package matching

import (
	"time"

	donorModels "transplant/internal/donor/models"
	id "transplant/pkg/domain"
)

// Candidate is a potential donor as the scoring rules see it. Public profiles
// carry no clinical detail, so those fields stay zero.
type Candidate struct {
	Ref              id.DonorRef        `json:"ref"`
	BloodType        id.BloodType       `json:"blood_type"`
	OrganPreferences []id.OrganType     `json:"organ_preferences"`
	Status           donorModels.Status `json:"status"`
	DateOfBirth      *time.Time         `json:"-"`
	WeightKg         float64            `json:"-"`
	HeightCm         float64            `json:"-"`
	Allergies        []string           `json:"-"`
	MedicalHistory   string             `json:"-"`
	IsLivingDonor    bool               `json:"is_living_donor"`
	City             string             `json:"city,omitempty"`
	State            string             `json:"state,omitempty"`
}

func FromDonor(d *donorModels.Donor) Candidate {
	return Candidate{
		Ref:              id.RefToDonor(d.ID),
		BloodType:        d.BloodType,
		OrganPreferences: d.OrganPreferences,
		Status:           d.Status,
		DateOfBirth:      d.DateOfBirth,
		WeightKg:         d.WeightKg,
		HeightCm:         d.HeightCm,
		Allergies:        d.Allergies,
		MedicalHistory:   d.MedicalHistory,
		IsLivingDonor:    d.IsLivingDonor,
		City:             d.Location.City,
		State:            d.Location.State,
	}
}

func FromProfile(p *donorModels.PublicProfile) Candidate {
	return Candidate{
		Ref:              id.RefToProfile(p.UserID),
		BloodType:        p.BloodType,
		OrganPreferences: p.OrganPreferences,
		Status:           p.Status,
		DateOfBirth:      p.DateOfBirth,
		City:             p.Location.City,
		State:            p.Location.State,
	}
}

// Match is a scored candidate.
type Match struct {
	Candidate
	Score      int  `json:"score"`
	ExactBlood bool `json:"exact_blood_match"`
}
