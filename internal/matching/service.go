package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	donorModels "transplant/internal/donor/models"
	donorStore "transplant/internal/donor/store/donor"
	"transplant/internal/platform/metrics"
	requestModels "transplant/internal/request/models"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/requestcontext"
)

type RequestReader interface {
	FindByID(ctx context.Context, requestID id.RequestID) (*requestModels.Request, error)
}

type DonorReader interface {
	FindByID(ctx context.Context, donorID id.DonorID) (*donorModels.Donor, error)
	List(ctx context.Context, filter donorStore.ListFilter) ([]*donorModels.Donor, error)
}

type ProfileReader interface {
	FindByUserID(ctx context.Context, userID id.UserID) (*donorModels.PublicProfile, error)
	List(ctx context.Context, status donorModels.Status) ([]*donorModels.PublicProfile, error)
}

type Service struct {
	requests RequestReader
	donors   DonorReader
	profiles ProfileReader
	fitness  FitnessAssessor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithFitnessAssessor(f FitnessAssessor) Option {
	return func(s *Service) {
		s.fitness = f
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(requests RequestReader, donors DonorReader, profiles ProfileReader, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		donors:   donors,
		profiles: profiles,
		fitness:  ProfileFitness{},
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPotentialMatches ranks every compatible active candidate for a pending
// request. Registered donors precede public profiles on equal scores.
func (s *Service) GetPotentialMatches(ctx context.Context, actor id.Actor, requestID id.RequestID) ([]Match, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, translate(err, "request")
	}
	if !actor.ActsFor(req.HospitalID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not view matches for this request")
	}
	if req.Status != requestModels.StatusPending {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("request is %s, matches are only listed while pending", req.CurrentStage()))
	}

	var (
		donors   []*donorModels.Donor
		profiles []*donorModels.PublicProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		donors, err = s.donorPool(gctx, req)
		return err
	})
	g.Go(func() error {
		var err error
		profiles, err = s.profiles.List(gctx, donorModels.StatusActive)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "failed to load match candidates",
			"request_id", requestcontext.RequestID(ctx), "request", requestID, "error", err)
		return nil, translate(err, "donor pool")
	}

	candidates := make([]Candidate, 0, len(donors)+len(profiles))
	for _, d := range donors {
		candidates = append(candidates, FromDonor(d))
	}
	for _, p := range profiles {
		candidates = append(candidates, FromProfile(p))
	}
	matches := NewScorer(s.fitness, s.now(ctx)).Rank(req, candidates)
	s.metrics.ObserveMatchCandidates(len(matches))
	return matches, nil
}

// donorPool loads every active registered donor that passes the store-side
// part of the screening rule, one page at a time.
func (s *Service) donorPool(ctx context.Context, req *requestModels.Request) ([]*donorModels.Donor, error) {
	filter := donorStore.ListFilter{
		Status:     donorModels.StatusActive,
		Organ:      req.OrganType,
		BloodTypes: CompatibleBloodTypes(req.Patient.BloodType),
		Limit:      donorStore.MaxPage,
	}
	var pool []*donorModels.Donor
	for {
		page, err := s.donors.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		pool = append(pool, page...)
		if len(page) < filter.Limit {
			return pool, nil
		}
		filter.Offset += len(page)
	}
}

// Candidate loads one candidate by reference.
func (s *Service) Candidate(ctx context.Context, ref id.DonorRef) (Candidate, error) {
	if donorID, ok := ref.Donor(); ok {
		d, err := s.donors.FindByID(ctx, donorID)
		if err != nil {
			return Candidate{}, translate(err, "donor")
		}
		return FromDonor(d), nil
	}
	if userID, ok := ref.Profile(); ok {
		p, err := s.profiles.FindByUserID(ctx, userID)
		if err != nil {
			return Candidate{}, translate(err, "public profile")
		}
		return FromProfile(p), nil
	}
	return Candidate{}, dErrors.New(dErrors.CodeValidation, "unknown donor kind")
}

// CheckCompatible re-applies the screening rule before a donor is approved.
func (s *Service) CheckCompatible(ctx context.Context, req *requestModels.Request, ref id.DonorRef) error {
	c, err := s.Candidate(ctx, ref)
	if err != nil {
		return err
	}
	if c.Status != donorModels.StatusActive {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("donor is %s and cannot be selected", c.Status))
	}
	if !Compatible(req, c) {
		return dErrors.New(dErrors.CodeValidation, "donor is not compatible with this request")
	}
	return nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if requestcontext.HasTime(ctx) {
		return requestcontext.Now(ctx).UTC()
	}
	return s.clock().UTC()
}

func translate(err error, entity string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out loading "+entity)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+entity)
}
