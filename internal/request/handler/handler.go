// Package handler exposes the request lifecycle, matching and SLA operations
// over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"transplant/internal/matching"
	"transplant/internal/request/models"
	"transplant/internal/request/service"
	requestStore "transplant/internal/request/store/request"
	"transplant/internal/sla"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/httputil"
	"transplant/pkg/platform/validation"
	"transplant/pkg/requestcontext"
)

// Lifecycle is the request service as the handler uses it.
type Lifecycle interface {
	CreateRequest(ctx context.Context, actor id.Actor, in service.CreateRequestInput) (*models.Request, error)
	GetRequest(ctx context.Context, actor id.Actor, requestID id.RequestID) (*models.Request, error)
	ListRequests(ctx context.Context, actor id.Actor, filter requestStore.ListFilter) ([]*models.Request, error)
	SelectDonor(ctx context.Context, actor id.Actor, requestID id.RequestID, ref id.DonorRef, action service.SelectAction, reason string) (*models.Request, error)
	ValidateEligibility(ctx context.Context, actor id.Actor, requestID id.RequestID, notes string) (*models.Request, error)
	RejectEligibility(ctx context.Context, actor id.Actor, requestID id.RequestID, reason string) (*models.Request, error)
	RecordConsent(ctx context.Context, actor id.Actor, requestID id.RequestID, decision models.ConsentStatus, notes string) (*models.Request, error)
	ScheduleSurgery(ctx context.Context, actor id.Actor, requestID id.RequestID, ref id.DonorRef, details models.SurgeryDetails) (*models.Transplant, error)
	RecordOutcome(ctx context.Context, actor id.Actor, transplantID id.TransplantID, outcome models.Outcome) (*models.Transplant, error)
	CancelRequest(ctx context.Context, actor id.Actor, requestID id.RequestID, reason string) (*models.Request, error)
	HospitalStats(ctx context.Context, actor id.Actor, hospitalID id.HospitalID) (models.HospitalStats, error)
}

type Matcher interface {
	GetPotentialMatches(ctx context.Context, actor id.Actor, requestID id.RequestID) ([]matching.Match, error)
}

type SLA interface {
	RecordSLABreach(ctx context.Context, actor id.Actor, requestID id.RequestID, reason string) (*models.Request, error)
	SLAStatus(ctx context.Context, actor id.Actor, requestID id.RequestID) (sla.Snapshot, error)
	Compliance(ctx context.Context, actor id.Actor, hospitalID id.HospitalID) (sla.ComplianceReport, error)
}

type Handler struct {
	lifecycle Lifecycle
	matcher   Matcher
	sla       SLA
	logger    *slog.Logger
}

func New(lifecycle Lifecycle, matcher Matcher, sla SLA, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{lifecycle: lifecycle, matcher: matcher, sla: sla, logger: logger}
}

// Register mounts the routes. Authentication is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/matches", h.handleMatches)
			r.Post("/selection", h.handleSelectDonor)
			r.Post("/eligibility", h.handleEligibility)
			r.Post("/consent", h.handleConsent)
			r.Post("/transplant", h.handleSchedule)
			r.Post("/cancel", h.handleCancel)
			r.Get("/sla", h.handleSLAStatus)
			r.Post("/sla/breach", h.handleSLABreach)
		})
	})
	r.Post("/transplants/{transplantID}/outcome", h.handleOutcome)
	r.Get("/hospitals/{hospitalID}/stats", h.handleHospitalStats)
	r.Get("/hospitals/{hospitalID}/sla-compliance", h.handleCompliance)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	in := service.CreateRequestInput{Patient: body.patient(), Urgency: body.Urgency, OrganType: body.OrganType}
	if body.HospitalID != "" {
		hospitalID, err := id.ParseHospitalID(body.HospitalID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		in.HospitalID = hospitalID
	}
	req, err := h.lifecycle.CreateRequest(r.Context(), actorFrom(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := requestStore.ListFilter{
		Status:  models.Status(q.Get("status")),
		Urgency: models.Urgency(q.Get("urgency")),
	}
	if raw := q.Get("hospital_id"); raw != "" {
		hospitalID, err := id.ParseHospitalID(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.HospitalID = hospitalID
	}
	reqs, err := h.lifecycle.ListRequests(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []*models.Request{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.lifecycle.GetRequest(r.Context(), actorFrom(r), requestID)
	h.respond(w, r, req, err)
}

func (h *Handler) handleMatches(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	matches, err := h.matcher.GetPotentialMatches(r.Context(), actorFrom(r), requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *Handler) handleSelectDonor(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body selectDonorBody
	if !h.decode(w, r, &body) {
		return
	}
	ref, err := id.ParseDonorRef(body.DonorKind, body.DonorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	action, err := service.ParseSelectAction(body.Action)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.lifecycle.SelectDonor(r.Context(), actorFrom(r), requestID, ref, action, body.Notes)
	h.respond(w, r, req, err)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body eligibilityBody
	if !h.decode(w, r, &body) {
		return
	}
	var (
		req *models.Request
		err error
	)
	if body.Decision == string(models.EligibilityValidated) {
		req, err = h.lifecycle.ValidateEligibility(r.Context(), actorFrom(r), requestID, body.Notes)
	} else {
		req, err = h.lifecycle.RejectEligibility(r.Context(), actorFrom(r), requestID, body.Notes)
	}
	h.respond(w, r, req, err)
}

func (h *Handler) handleConsent(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body consentBody
	if !h.decode(w, r, &body) {
		return
	}
	decision, err := models.ParseConsentDecision(body.Decision)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.lifecycle.RecordConsent(r.Context(), actorFrom(r), requestID, decision, body.Notes)
	h.respond(w, r, req, err)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body scheduleBody
	if !h.decode(w, r, &body) {
		return
	}
	ref, err := id.ParseDonorRef(body.DonorKind, body.DonorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.lifecycle.ScheduleSurgery(r.Context(), actorFrom(r), requestID, ref, models.SurgeryDetails{
		Surgeon:       body.Surgeon,
		OperatingRoom: body.OperatingRoom,
		ScheduledDate: body.ScheduledDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleOutcome(w http.ResponseWriter, r *http.Request) {
	transplantID, err := id.ParseTransplantID(chi.URLParam(r, "transplantID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body outcomeBody
	if !h.decode(w, r, &body) {
		return
	}
	t, err := h.lifecycle.RecordOutcome(r.Context(), actorFrom(r), transplantID, models.Outcome{
		Success:       *body.Success,
		Complications: body.Complications,
		Notes:         body.Notes,
	})
	h.respond(w, r, t, err)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.lifecycle.CancelRequest(r.Context(), actorFrom(r), requestID, body.Reason)
	h.respond(w, r, req, err)
}

func (h *Handler) handleSLAStatus(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	snap, err := h.sla.SLAStatus(r.Context(), actorFrom(r), requestID)
	h.respond(w, r, snap, err)
}

func (h *Handler) handleSLABreach(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.sla.RecordSLABreach(r.Context(), actorFrom(r), requestID, body.Reason)
	h.respond(w, r, req, err)
}

func (h *Handler) handleHospitalStats(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := id.ParseHospitalID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.lifecycle.HospitalStats(r.Context(), actorFrom(r), hospitalID)
	h.respond(w, r, stats, err)
}

func (h *Handler) handleCompliance(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := id.ParseHospitalID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.sla.Compliance(r.Context(), actorFrom(r), hospitalID)
	h.respond(w, r, report, err)
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (id.RequestID, bool) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return requestID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(r, v); err != nil {
		h.fail(w, r, err)
		return false
	}
	if err := validation.Struct(v); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// fail logs server-side failures and writes the mapped error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func actorFrom(r *http.Request) id.Actor {
	actor, _ := requestcontext.Actor(r.Context())
	return actor
}
