package models

import (
	"net/mail"
	"strings"
	"time"

	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	pkgstrings "transplant/pkg/platform/strings"
)

// Status is the availability of a donor or public profile.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeceased Status = "deceased"
	StatusMatched  Status = "matched"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive, StatusDeceased, StatusMatched:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "status must be one of active, inactive, deceased, matched")
}

// CanSetManually checks an administrative status change. Matched is owned by
// the matching flow: it can neither be set nor left by hand. Deceased is final.
func CanSetManually(from, to Status) error {
	switch {
	case to == StatusMatched:
		return dErrors.New(dErrors.CodeValidation, "matched status is set only by donor selection")
	case from == StatusMatched:
		return dErrors.New(dErrors.CodeConflict, "a matched donor is released only by cancelling its request")
	case from == StatusDeceased:
		return dErrors.New(dErrors.CodeConflict, "deceased is a final status")
	}
	return nil
}

type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Location struct {
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

// Donor is a hospital-registered donor. Donors are never deleted; retire
// them through Status.
type Donor struct {
	ID               id.DonorID       `json:"id"`
	UserID           id.UserID        `json:"user_id"`
	RegisteredBy     id.HospitalID    `json:"registered_by"`
	Name             string           `json:"name"`
	Contact          Contact          `json:"contact"`
	DateOfBirth      *time.Time       `json:"date_of_birth,omitempty"`
	BloodType        id.BloodType     `json:"blood_type"`
	WeightKg         float64          `json:"weight_kg,omitempty"`
	HeightCm         float64          `json:"height_cm,omitempty"`
	MedicalHistory   string           `json:"medical_history,omitempty"`
	Allergies        []string         `json:"allergies"`
	OrganPreferences []id.OrganType   `json:"organ_preferences"`
	IsLivingDonor    bool             `json:"is_living_donor"`
	Location         Location         `json:"location"`
	Status           Status           `json:"status"`
	ConsentRequests  []ConsentRequest `json:"consent_requests,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DonorInput carries registration data as received.
type DonorInput struct {
	UserID           id.UserID
	Name             string
	Contact          Contact
	DateOfBirth      *time.Time
	BloodType        string
	WeightKg         float64
	HeightCm         float64
	MedicalHistory   string
	Allergies        []string
	OrganPreferences []string
	IsLivingDonor    bool
	Location         Location
}

// NewDonor validates input and builds an active donor. Allergies and organ
// preferences are trimmed, lower-cased and de-duplicated.
func NewDonor(donorID id.DonorID, registeredBy id.HospitalID, in DonorInput, now time.Time) (*Donor, error) {
	if registeredBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registering hospital is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	blood, err := id.ParseBloodType(in.BloodType)
	if err != nil {
		return nil, err
	}
	organs, err := id.ParseOrganTypes(pkgstrings.NormalizeList(in.OrganPreferences))
	if err != nil {
		return nil, err
	}
	if len(organs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one organ preference is required")
	}
	if in.WeightKg < 0 || in.HeightCm < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "weight and height must not be negative")
	}
	if in.Contact.Email != "" {
		if _, err := mail.ParseAddress(in.Contact.Email); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid contact email")
		}
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "date of birth is in the future")
	}
	now = now.UTC()
	return &Donor{
		ID:               donorID,
		UserID:           in.UserID,
		RegisteredBy:     registeredBy,
		Name:             name,
		Contact:          in.Contact,
		DateOfBirth:      in.DateOfBirth,
		BloodType:        blood,
		WeightKg:         in.WeightKg,
		HeightCm:         in.HeightCm,
		MedicalHistory:   strings.TrimSpace(in.MedicalHistory),
		Allergies:        pkgstrings.NormalizeList(in.Allergies),
		OrganPreferences: organs,
		IsLivingDonor:    in.IsLivingDonor,
		Location:         in.Location,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// ConsentRequestFor returns the consent request a hospital filed, if any.
func (d *Donor) ConsentRequestFor(hospitalID id.HospitalID) (ConsentRequest, bool) {
	for _, cr := range d.ConsentRequests {
		if cr.HospitalID == hospitalID {
			return cr, true
		}
	}
	return ConsentRequest{}, false
}

func (d *Donor) Clone() *Donor {
	c := *d
	if d.DateOfBirth != nil {
		dob := *d.DateOfBirth
		c.DateOfBirth = &dob
	}
	c.Allergies = append([]string(nil), d.Allergies...)
	c.OrganPreferences = append([]id.OrganType(nil), d.OrganPreferences...)
	c.ConsentRequests = append([]ConsentRequest(nil), d.ConsentRequests...)
	return &c
}

// AgeAt returns completed years at now, or false when the birth date is unknown.
func AgeAt(dob *time.Time, now time.Time) (int, bool) {
	if dob == nil {
		return 0, false
	}
	born, at := dob.UTC(), now.UTC()
	years := at.Year() - born.Year()
	if at.Month() < born.Month() || (at.Month() == born.Month() && at.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years, true
}
