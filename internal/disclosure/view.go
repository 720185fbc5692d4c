// Package disclosure decides how much of a donor record a hospital may see.
//
// Tiers, checked in order:
//  1. the registering hospital always sees the full record
//  2. a hospital whose request is matched to the donor sees the full record
//     once eligibility is validated and consent given; the first such read
//     flips the request's reveal flag and is audited
//  3. everyone else sees an anonymized view
//
// The confidential document bundle is a separate path gated by the donor's
// answer to a per-hospital consent request.
package disclosure

import (
	"time"

	donorModels "transplant/internal/donor/models"
	id "transplant/pkg/domain"
)

type Tier string

const (
	TierAdmin       Tier = "admin"
	TierRegistering Tier = "registering_hospital"
	TierMatched     Tier = "matched_request"
	TierSelf        Tier = "self"
	TierAnonymized  Tier = "anonymized"
)

// IsFull reports whether the tier exposes identity and contact details.
func (t Tier) IsFull() bool {
	return t != TierAnonymized
}

// AnonymizedDonor is everything a hospital without a claim may see.
type AnonymizedDonor struct {
	BloodType        id.BloodType         `json:"blood_type"`
	OrganPreferences []id.OrganType       `json:"organ_preferences"`
	Location         donorModels.Location `json:"location"`
	Status           donorModels.Status   `json:"status"`
}

// DonorView carries exactly one of Donor or Anonymized.
type DonorView struct {
	Tier       Tier               `json:"tier"`
	Donor      *donorModels.Donor `json:"donor,omitempty"`
	Anonymized *AnonymizedDonor   `json:"anonymized,omitempty"`
}

func fullView(tier Tier, d *donorModels.Donor) DonorView {
	c := d.Clone()
	if tier == TierMatched {
		c.ConsentRequests = nil
	}
	return DonorView{Tier: tier, Donor: c}
}

func anonymizedView(d *donorModels.Donor) DonorView {
	return DonorView{Tier: TierAnonymized, Anonymized: &AnonymizedDonor{
		BloodType:        d.BloodType,
		OrganPreferences: append([]id.OrganType(nil), d.OrganPreferences...),
		Location:         d.Location,
		Status:           d.Status,
	}}
}

// BundleDocument is one confidential document with a short-lived link.
type BundleDocument struct {
	Category  string    `json:"category"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Bundle struct {
	DonorID   id.DonorID       `json:"donor_id"`
	Documents []BundleDocument `json:"documents"`
}
