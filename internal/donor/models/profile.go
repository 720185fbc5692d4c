package models

import (
	"strings"
	"time"

	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	pkgstrings "transplant/pkg/platform/strings"
)

// PublicProfile is a self-registered user willing to donate. Profiles are
// matched alongside hospital-registered donors.
type PublicProfile struct {
	UserID           id.UserID      `json:"user_id"`
	Name             string         `json:"name"`
	BloodType        id.BloodType   `json:"blood_type"`
	DateOfBirth      *time.Time     `json:"date_of_birth,omitempty"`
	OrganPreferences []id.OrganType `json:"organ_preferences"`
	Location         Location       `json:"location"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type ProfileInput struct {
	Name             string
	BloodType        string
	DateOfBirth      *time.Time
	OrganPreferences []string
	Location         Location
}

func NewPublicProfile(userID id.UserID, in ProfileInput, now time.Time) (*PublicProfile, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
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
	now = now.UTC()
	return &PublicProfile{
		UserID:           userID,
		Name:             name,
		BloodType:        blood,
		DateOfBirth:      in.DateOfBirth,
		OrganPreferences: organs,
		Location:         in.Location,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (p *PublicProfile) Clone() *PublicProfile {
	c := *p
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		c.DateOfBirth = &dob
	}
	c.OrganPreferences = append([]id.OrganType(nil), p.OrganPreferences...)
	return &c
}
