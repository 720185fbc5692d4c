package matching

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	donorModels "transplant/internal/donor/models"
	donorStore "transplant/internal/donor/store/donor"
	profileStore "transplant/internal/donor/store/profile"
	requestModels "transplant/internal/request/models"
	requestStore "transplant/internal/request/store/request"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/testutil"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func request(t *testing.T, blood id.BloodType, age int, hospital id.HospitalID) *requestModels.Request {
	req, err := requestModels.NewRequest(id.NewRequestID(2026, 1), hospital,
		requestModels.Patient{Name: "P", Age: age, BloodType: blood, Condition: "c"},
		requestModels.UrgencyHigh, id.OrganKidney, now, 30*24*time.Hour)
	require.NoError(t, err)
	return req
}

func bornYearsAgo(years int) *time.Time {
	t := now.AddDate(-years, 0, -1)
	return &t
}

func candidate(blood id.BloodType, organs ...id.OrganType) Candidate {
	return Candidate{
		Ref:              id.RefToDonor(id.NewDonorID()),
		BloodType:        blood,
		OrganPreferences: organs,
		Status:           donorModels.StatusActive,
	}
}

func TestCompatible_UniversalDonor(t *testing.T) {
	testutil.Given(t, "an A+ patient needing a kidney", func(t *testing.T) {
		req := request(t, id.BloodAPos, 40, id.NewHospitalID())

		testutil.When(t, "candidates of several blood types offer a kidney", func(t *testing.T) {
			testutil.Then(t, "only A+ and O- donors are compatible", func(t *testing.T) {
				assert.True(t, Compatible(req, candidate(id.BloodAPos, id.OrganKidney)))
				assert.True(t, Compatible(req, candidate(id.BloodONeg, id.OrganKidney)))
				assert.False(t, Compatible(req, candidate(id.BloodOPos, id.OrganKidney)))
				assert.False(t, Compatible(req, candidate(id.BloodANeg, id.OrganKidney)))
				assert.False(t, Compatible(req, candidate(id.BloodABPos, id.OrganKidney)))
			})
		})

		testutil.When(t, "the O- donor does not offer a kidney", func(t *testing.T) {
			testutil.Then(t, "the donor is excluded", func(t *testing.T) {
				assert.False(t, Compatible(req, candidate(id.BloodONeg, id.OrganLiver)))
			})
		})

		testutil.When(t, "the O- donor is not active", func(t *testing.T) {
			testutil.Then(t, "the donor is excluded", func(t *testing.T) {
				c := candidate(id.BloodONeg, id.OrganKidney)
				c.Status = donorModels.StatusMatched
				assert.False(t, Compatible(req, c))
			})
			testutil.And(t, "becomes compatible again once released", func(t *testing.T) {
				c := candidate(id.BloodONeg, id.OrganKidney)
				c.Status = donorModels.StatusActive
				assert.True(t, Compatible(req, c))
			})
		})
	})
}

func TestScore(t *testing.T) {
	req := request(t, id.BloodAPos, 40, id.NewHospitalID())
	scorer := NewScorer(ProfileFitness{}, now)

	tests := []struct {
		name string
		cand Candidate
		want int
	}{
		{
			name: "exact match same age no profile",
			cand: Candidate{BloodType: id.BloodAPos, DateOfBirth: bornYearsAgo(40)},
			want: 120,
		},
		{
			name: "universal donor ten years older",
			cand: Candidate{BloodType: id.BloodONeg, DateOfBirth: bornYearsAgo(50)},
			want: 90,
		},
		{
			name: "unknown age falls back to thirty five",
			cand: Candidate{BloodType: id.BloodAPos},
			want: 115,
		},
		{
			name: "age penalty is capped",
			cand: Candidate{BloodType: id.BloodONeg, DateOfBirth: bornYearsAgo(100)},
			want: 50,
		},
		{
			name: "full fitness",
			cand: Candidate{BloodType: id.BloodAPos, DateOfBirth: bornYearsAgo(40), WeightKg: 70, HeightCm: 175},
			want: 140,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scorer.Score(req, tt.cand).Score)
		})
	}
}

func TestProfileFitness(t *testing.T) {
	f := ProfileFitness{}
	assert.Equal(t, 0, f.Fitness(Candidate{}), "no measurements means pending assessment")
	assert.Equal(t, 20, f.Fitness(Candidate{WeightKg: 70, HeightCm: 175}))
	assert.Equal(t, 12, f.Fitness(Candidate{WeightKg: 120, HeightCm: 175}), "BMI above 30")
	assert.Equal(t, 8, f.Fitness(Candidate{WeightKg: 70, HeightCm: 175, Allergies: []string{"latex"}, MedicalHistory: "asthma"}))
}

type fixedFitness int

func (f fixedFitness) Fitness(Candidate) int { return int(f) }

func TestRank_ExactMatchOutranksUniversalDonor(t *testing.T) {
	req := request(t, id.BloodBPos, 30, id.NewHospitalID())
	universal := candidate(id.BloodONeg, id.OrganKidney)
	universal.DateOfBirth = bornYearsAgo(30)
	exact := candidate(id.BloodBPos, id.OrganKidney)
	exact.DateOfBirth = bornYearsAgo(30)
	other := candidate(id.BloodAPos, id.OrganKidney)

	ranked := NewScorer(fixedFitness(10), now).Rank(req, []Candidate{universal, other, exact})
	require.Len(t, ranked, 2)
	assert.Equal(t, exact.Ref, ranked[0].Ref)
	assert.True(t, ranked[0].ExactBlood)
	assert.Equal(t, 20, ranked[0].Score-ranked[1].Score)
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	req := request(t, id.BloodONeg, 35, id.NewHospitalID())
	first := candidate(id.BloodONeg, id.OrganKidney)
	second := candidate(id.BloodONeg, id.OrganKidney)
	second.Ref = id.RefToProfile(id.NewUserID())

	ranked := NewScorer(nil, now).Rank(req, []Candidate{first, second})
	require.Len(t, ranked, 2)
	assert.Equal(t, first.Ref, ranked[0].Ref)
	assert.Equal(t, second.Ref, ranked[1].Ref)
}

func TestRank_Deterministic(t *testing.T) {
	req := request(t, id.BloodAPos, 52, id.NewHospitalID())
	cands := []Candidate{
		candidate(id.BloodONeg, id.OrganKidney),
		candidate(id.BloodAPos, id.OrganKidney),
		candidate(id.BloodAPos, id.OrganKidney),
	}
	cands[1].DateOfBirth = bornYearsAgo(60)
	scorer := NewScorer(ProfileFitness{}, now)
	assert.Equal(t, scorer.Rank(req, cands), scorer.Rank(req, cands))
}

type serviceFixture struct {
	requests *requestStore.InMemory
	donors   *donorStore.InMemory
	profiles *profileStore.InMemory
	service  *Service
	hospital id.HospitalID
}

func newFixture(t *testing.T) *serviceFixture {
	f := &serviceFixture{
		requests: requestStore.NewInMemory(),
		donors:   donorStore.NewInMemory(),
		profiles: profileStore.NewInMemory(),
		hospital: id.NewHospitalID(),
	}
	f.service = New(f.requests, f.donors, f.profiles, WithClock(func() time.Time { return now }))
	return f
}

func (f *serviceFixture) addDonor(t *testing.T, blood string, organs ...string) *donorModels.Donor {
	d, err := donorModels.NewDonor(id.NewDonorID(), f.hospital, donorModels.DonorInput{
		Name: "D", BloodType: blood, OrganPreferences: organs,
	}, now)
	require.NoError(t, err)
	require.NoError(t, f.donors.Create(context.Background(), d))
	return d
}

func (f *serviceFixture) addProfile(t *testing.T, blood string, organs ...string) *donorModels.PublicProfile {
	p, err := donorModels.NewPublicProfile(id.NewUserID(), donorModels.ProfileInput{
		Name: "P", BloodType: blood, OrganPreferences: organs,
	}, now)
	require.NoError(t, err)
	require.NoError(t, f.profiles.Create(context.Background(), p))
	return p
}

func TestService_GetPotentialMatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := request(t, id.BloodAPos, 35, f.hospital)
	require.NoError(t, f.requests.Create(ctx, req))

	universal := f.addDonor(t, "O-", "kidney")
	f.addDonor(t, "B+", "kidney")
	f.addDonor(t, "A+", "liver")
	profile := f.addProfile(t, "A+", "kidney")

	matches, err := f.service.GetPotentialMatches(ctx, testutil.HospitalStaff(f.hospital), req.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, id.RefToProfile(profile.UserID), matches[0].Ref, "exact match ranks first")
	assert.Equal(t, id.RefToDonor(universal.ID), matches[1].Ref)

	_, err = f.service.GetPotentialMatches(ctx, testutil.HospitalStaff(id.NewHospitalID()), req.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = f.service.GetPotentialMatches(ctx, testutil.Admin(), id.NewRequestID(2026, 99))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestService_GetPotentialMatchesRequiresPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := request(t, id.BloodAPos, 35, f.hospital)
	require.NoError(t, req.Cancel(now, "no longer needed"))
	require.NoError(t, f.requests.Create(ctx, req))

	_, err := f.service.GetPotentialMatches(ctx, testutil.Admin(), req.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestService_CheckCompatible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := request(t, id.BloodAPos, 35, f.hospital)
	universal := f.addDonor(t, "O-", "kidney")
	incompatible := f.addDonor(t, "B-", "kidney")

	assert.NoError(t, f.service.CheckCompatible(ctx, req, id.RefToDonor(universal.ID)))
	err := f.service.CheckCompatible(ctx, req, id.RefToDonor(incompatible.ID))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	err = f.service.CheckCompatible(ctx, req, id.RefToProfile(id.NewUserID()))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	require.NoError(t, f.donors.UpdateStatus(ctx, universal.ID, donorModels.StatusActive, donorModels.StatusMatched, now))
	err = f.service.CheckCompatible(ctx, req, id.RefToDonor(universal.ID))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestService_GetPotentialMatchesReadsWholePool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := request(t, id.BloodAPos, 35, f.hospital)
	require.NoError(t, f.requests.Create(ctx, req))

	for range donorStore.MaxPage {
		f.addDonor(t, "B+", "kidney")
	}
	for range donorStore.MaxPage + 1 {
		f.addDonor(t, "O-", "kidney")
	}

	matches, err := f.service.GetPotentialMatches(ctx, testutil.HospitalStaff(f.hospital), req.ID)
	require.NoError(t, err)
	assert.Len(t, matches, donorStore.MaxPage+1)
}

func TestCompatibleBloodTypesAgreesWithCompatible(t *testing.T) {
	req := request(t, id.BloodAPos, 40, id.NewHospitalID())
	for _, bt := range []id.BloodType{id.BloodAPos, id.BloodANeg, id.BloodBPos, id.BloodBNeg, id.BloodABPos, id.BloodABNeg, id.BloodOPos, id.BloodONeg} {
		req.Patient.BloodType = bt
		allowed := CompatibleBloodTypes(bt)
		for _, donor := range []id.BloodType{id.BloodAPos, id.BloodANeg, id.BloodBPos, id.BloodBNeg, id.BloodABPos, id.BloodABNeg, id.BloodOPos, id.BloodONeg} {
			assert.Equal(t, Compatible(req, candidate(donor, id.OrganKidney)), slices.Contains(allowed, donor),
				"patient %s donor %s", bt, donor)
		}
	}
}
