// Package sla tracks the service-level deadline of each request.
//
// The recorded breach flag is the source of truth: elapsed time past the
// budget never implies a breach on its own. A breach exists only once
// somebody records it with a reason.
package sla

import (
	"math"
	"time"

	"transplant/internal/request/models"
)

const (
	nearBreachHours = 20
	defaultBudget   = 72 * time.Hour
)

var budgets = map[models.Urgency]time.Duration{
	models.UrgencyCritical: 24 * time.Hour,
	models.UrgencyHigh:     48 * time.Hour,
	models.UrgencyMedium:   72 * time.Hour,
	models.UrgencyLow:      168 * time.Hour,
}

// Budget returns the time allowed to resolve a request of the given urgency.
func Budget(u models.Urgency) time.Duration {
	if b, ok := budgets[u]; ok {
		return b
	}
	return defaultBudget
}

// Snapshot is the SLA view of one request at a point in time.
type Snapshot struct {
	RequestID    string     `json:"request_id"`
	Urgency      string     `json:"urgency"`
	HoursElapsed float64    `json:"hours_elapsed"`
	Deadline     time.Time  `json:"deadline"`
	IsBreached   bool       `json:"is_breached"`
	NearBreach   bool       `json:"near_breach"`
	BreachedAt   *time.Time `json:"breached_at,omitempty"`
	DelayReason  string     `json:"delay_reason,omitempty"`
}

type Tracker struct {
	clock func() time.Time
}

func NewTracker(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{clock: clock}
}

func (t *Tracker) Evaluate(req *models.Request) Snapshot {
	return evaluateAt(req, t.clock())
}

func evaluateAt(req *models.Request, now time.Time) Snapshot {
	created := req.CreatedAt.UTC()
	elapsed := now.UTC().Sub(created).Hours()
	breached := req.SLABreachedAt != nil
	snap := Snapshot{
		RequestID:    req.ID.String(),
		Urgency:      string(req.Urgency),
		HoursElapsed: elapsed,
		Deadline:     created.Add(Budget(req.Urgency)),
		IsBreached:   breached,
		NearBreach:   req.Urgency == models.UrgencyCritical && elapsed >= nearBreachHours && !breached,
		DelayReason:  req.DelayReason,
	}
	if breached {
		at := req.SLABreachedAt.UTC()
		snap.BreachedAt = &at
	}
	return snap
}

// ComplianceRate is the rounded percentage of requests without a recorded
// breach. An empty set is fully compliant.
func ComplianceRate(reqs []*models.Request) int {
	breached := 0
	for _, r := range reqs {
		if r.SLABreachedAt != nil {
			breached++
		}
	}
	return RateOf(len(reqs), breached)
}

// RateOf is ComplianceRate from counts.
func RateOf(total, breached int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(total-breached) / float64(total)))
}
