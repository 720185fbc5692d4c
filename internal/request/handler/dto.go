package handler

import (
	"time"

	"transplant/internal/request/models"
	id "transplant/pkg/domain"
)

type createRequestBody struct {
	HospitalID string `json:"hospital_id" validate:"omitempty,uuid"`
	Patient    struct {
		Name      string `json:"name" validate:"required"`
		Age       int    `json:"age" validate:"gte=0,lte=130"`
		BloodType string `json:"blood_type" validate:"required,bloodtype"`
		Condition string `json:"condition"`
	} `json:"patient"`
	Urgency   string `json:"urgency" validate:"required,oneof=low medium high critical"`
	OrganType string `json:"organ_type" validate:"required,organ"`
}

type selectDonorBody struct {
	DonorKind string `json:"donor_kind" validate:"omitempty,oneof=donor user"`
	DonorID   string `json:"donor_id" validate:"required,uuid"`
	Action    string `json:"action" validate:"required,oneof=approve reject"`
	Notes     string `json:"notes"`
}

type eligibilityBody struct {
	Decision string `json:"decision" validate:"required,oneof=validated rejected"`
	Notes    string `json:"notes"`
}

type consentBody struct {
	Decision string `json:"decision" validate:"required,oneof=given denied"`
	Notes    string `json:"notes"`
}

type scheduleBody struct {
	DonorKind     string    `json:"donor_kind" validate:"omitempty,oneof=donor user"`
	DonorID       string    `json:"donor_id" validate:"required,uuid"`
	Surgeon       string    `json:"surgeon" validate:"required"`
	OperatingRoom string    `json:"operating_room" validate:"required"`
	ScheduledDate time.Time `json:"scheduled_date" validate:"required"`
}

type outcomeBody struct {
	Success       *bool  `json:"success" validate:"required"`
	Complications string `json:"complications"`
	Notes         string `json:"notes"`
}

type reasonBody struct {
	Reason string `json:"reason" validate:"required"`
}

// patient assumes the body passed validation.
func (b createRequestBody) patient() models.Patient {
	blood, _ := id.ParseBloodType(b.Patient.BloodType)
	return models.Patient{
		Name:      b.Patient.Name,
		Age:       b.Patient.Age,
		BloodType: blood,
		Condition: b.Patient.Condition,
	}
}
