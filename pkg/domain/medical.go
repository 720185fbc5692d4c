package domain

import (
	"strings"

	dErrors "transplant/pkg/domain-errors"
)

// BloodType is one of the eight ABO/Rh groups.
type BloodType string

const (
	BloodAPos  BloodType = "A+"
	BloodANeg  BloodType = "A-"
	BloodBPos  BloodType = "B+"
	BloodBNeg  BloodType = "B-"
	BloodABPos BloodType = "AB+"
	BloodABNeg BloodType = "AB-"
	BloodOPos  BloodType = "O+"
	BloodONeg  BloodType = "O-"
)

var validBloodTypes = map[BloodType]bool{
	BloodAPos: true, BloodANeg: true,
	BloodBPos: true, BloodBNeg: true,
	BloodABPos: true, BloodABNeg: true,
	BloodOPos: true, BloodONeg: true,
}

// ParseBloodType normalizes case and validates against the closed set.
func ParseBloodType(s string) (BloodType, error) {
	b := BloodType(strings.ToUpper(strings.TrimSpace(s)))
	if b == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "blood type cannot be empty")
	}
	if !b.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid blood type")
	}
	return b, nil
}

func (b BloodType) IsValid() bool { return validBloodTypes[b] }

func (b BloodType) String() string { return string(b) }

// OrganType is the closed set of organs a request may need.
type OrganType string

const (
	OrganKidney    OrganType = "kidney"
	OrganLiver     OrganType = "liver"
	OrganHeart     OrganType = "heart"
	OrganLung      OrganType = "lung"
	OrganPancreas  OrganType = "pancreas"
	OrganIntestine OrganType = "intestine"
	OrganCornea    OrganType = "cornea"
)

var validOrganTypes = map[OrganType]bool{
	OrganKidney:    true,
	OrganLiver:     true,
	OrganHeart:     true,
	OrganLung:      true,
	OrganPancreas:  true,
	OrganIntestine: true,
	OrganCornea:    true,
}

func ParseOrganType(s string) (OrganType, error) {
	o := OrganType(strings.ToLower(strings.TrimSpace(s)))
	if o == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "organ type cannot be empty")
	}
	if !o.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid organ type: "+s)
	}
	return o, nil
}

// ParseOrganTypes parses a list, rejecting the whole list on the first invalid value.
func ParseOrganTypes(values []string) ([]OrganType, error) {
	out := make([]OrganType, 0, len(values))
	for _, v := range values {
		o, err := ParseOrganType(v)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (o OrganType) IsValid() bool { return validOrganTypes[o] }

func (o OrganType) String() string { return string(o) }

// ContainsOrgan reports whether organ appears in list.
func ContainsOrgan(list []OrganType, organ OrganType) bool {
	for _, o := range list {
		if o == organ {
			return true
		}
	}
	return false
}
