package matching

import (
	"sort"
	"strings"
	"time"

	donorModels "transplant/internal/donor/models"
	requestModels "transplant/internal/request/models"
	id "transplant/pkg/domain"
)

const (
	baseScore        = 100
	exactBloodBonus  = 20
	maxAgePenalty    = 50
	fallbackDonorAge = 35
	maxFitness       = 20
)

// Compatible applies the screening rule: the candidate is active, offers the
// requested organ, and has the patient's blood type or is O-. This is a
// simplified model, not a clinical crossmatch.
func Compatible(req *requestModels.Request, c Candidate) bool {
	if c.Status != donorModels.StatusActive {
		return false
	}
	if !id.ContainsOrgan(c.OrganPreferences, req.OrganType) {
		return false
	}
	return c.BloodType == req.Patient.BloodType || c.BloodType == id.BloodONeg
}

// CompatibleBloodTypes lists the donor blood types Compatible accepts for a
// patient.
func CompatibleBloodTypes(patient id.BloodType) []id.BloodType {
	if patient == id.BloodONeg {
		return []id.BloodType{id.BloodONeg}
	}
	return []id.BloodType{patient, id.BloodONeg}
}

// FitnessAssessor rates a candidate's clinical fitness in [0, 20].
type FitnessAssessor interface {
	Fitness(c Candidate) int
}

// ProfileFitness scores from the registered profile only.
// Candidates without height and weight score 0 until assessed.
type ProfileFitness struct{}

func (ProfileFitness) Fitness(c Candidate) int {
	if c.WeightKg <= 0 || c.HeightCm <= 0 {
		return 0
	}
	score := 0
	meters := c.HeightCm / 100
	if bmi := c.WeightKg / (meters * meters); bmi >= 18.5 && bmi <= 30 {
		score += 8
	}
	if len(c.Allergies) == 0 {
		score += 6
	}
	if strings.TrimSpace(c.MedicalHistory) == "" {
		score += 6
	}
	return clamp(score, 0, maxFitness)
}

// Scorer computes candidate scores at a fixed instant.
type Scorer struct {
	fitness FitnessAssessor
	now     time.Time
}

func NewScorer(fitness FitnessAssessor, now time.Time) Scorer {
	if fitness == nil {
		fitness = ProfileFitness{}
	}
	return Scorer{fitness: fitness, now: now}
}

// Score is 100, plus 20 for an exact blood match, minus the age gap capped
// at 50, plus fitness.
func (s Scorer) Score(req *requestModels.Request, c Candidate) Match {
	exact := c.BloodType == req.Patient.BloodType
	score := baseScore
	if exact {
		score += exactBloodBonus
	}
	age, ok := donorModels.AgeAt(c.DateOfBirth, s.now)
	if !ok {
		age = fallbackDonorAge
	}
	gap := age - req.Patient.Age
	if gap < 0 {
		gap = -gap
	}
	score -= min(gap, maxAgePenalty)
	score += clamp(s.fitness.Fitness(c), 0, maxFitness)
	return Match{Candidate: c, Score: score, ExactBlood: exact}
}

// Rank filters to compatible candidates and orders them by descending score.
// Equal scores keep input order.
func (s Scorer) Rank(req *requestModels.Request, candidates []Candidate) []Match {
	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if Compatible(req, c) {
			out = append(out, s.Score(req, c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
