package models

import (
	"math"
	"strings"
	"time"

	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
)

type TransplantStatus string

const (
	TransplantScheduled TransplantStatus = "scheduled"
	TransplantCompleted TransplantStatus = "completed"
	TransplantCancelled TransplantStatus = "cancelled"
)

// SurgeryDetails are supplied when scheduling.
type SurgeryDetails struct {
	Surgeon       string    `json:"surgeon"`
	OperatingRoom string    `json:"operating_room"`
	ScheduledDate time.Time `json:"scheduled_date"`
}

func (d SurgeryDetails) Validate() error {
	if strings.TrimSpace(d.Surgeon) == "" {
		return dErrors.New(dErrors.CodeValidation, "surgeon is required")
	}
	if strings.TrimSpace(d.OperatingRoom) == "" {
		return dErrors.New(dErrors.CodeValidation, "operating room is required")
	}
	if d.ScheduledDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "scheduled date is required")
	}
	return nil
}

// Outcome is the surgical result reported after the operation.
type Outcome struct {
	Success       bool      `json:"success"`
	Complications string    `json:"complications,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Transplant is the downstream surgery record. There is at most one per request.
type Transplant struct {
	ID         id.TransplantID  `json:"id"`
	RequestID  id.RequestID     `json:"request_id"`
	HospitalID id.HospitalID    `json:"hospital_id"`
	Donor      id.DonorRef      `json:"donor"`
	Surgery    SurgeryDetails   `json:"surgery"`
	Status     TransplantStatus `json:"status"`
	Outcome    *Outcome         `json:"outcome,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

func NewTransplant(transplantID id.TransplantID, req *Request, donor id.DonorRef, details SurgeryDetails, now time.Time) *Transplant {
	details.ScheduledDate = details.ScheduledDate.UTC()
	return &Transplant{
		ID:         transplantID,
		RequestID:  req.ID,
		HospitalID: req.HospitalID,
		Donor:      donor,
		Surgery:    details,
		Status:     TransplantScheduled,
		CreatedAt:  now.UTC(),
	}
}

func (t *Transplant) CanRecordOutcome() error {
	if t.Status != TransplantScheduled {
		return dErrors.Newf(dErrors.CodeConflict, "cannot record outcome for %s transplant", t.Status)
	}
	return nil
}

func (t *Transplant) ApplyOutcome(outcome Outcome, now time.Time) {
	outcome.RecordedAt = now.UTC()
	t.Outcome = &outcome
	t.Status = TransplantCompleted
}

func (t *Transplant) Clone() *Transplant {
	c := *t
	if t.Outcome != nil {
		o := *t.Outcome
		c.Outcome = &o
	}
	return &c
}

// HospitalStats is the rolling surgical success rate of one hospital.
type HospitalStats struct {
	HospitalID  id.HospitalID `json:"hospital_id"`
	Completed   int           `json:"completed"`
	Successful  int           `json:"successful"`
	SuccessRate int           `json:"success_rate"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ComputeHospitalStats recomputes the statistic from every recorded outcome.
// With no completed transplants the rate is 0.
func ComputeHospitalStats(hospitalID id.HospitalID, transplants []*Transplant, now time.Time) HospitalStats {
	stats := HospitalStats{HospitalID: hospitalID, UpdatedAt: now.UTC()}
	for _, t := range transplants {
		if t.Status != TransplantCompleted || t.Outcome == nil {
			continue
		}
		stats.Completed++
		if t.Outcome.Success {
			stats.Successful++
		}
	}
	if stats.Completed > 0 {
		stats.SuccessRate = int(math.Round(100 * float64(stats.Successful) / float64(stats.Completed)))
	}
	return stats
}
