// Package handler exposes the donor registry and the disclosure gate over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"transplant/internal/disclosure"
	"transplant/internal/donor/models"
	"transplant/internal/donor/service"
	donorStore "transplant/internal/donor/store/donor"
	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/httputil"
	"transplant/pkg/platform/validation"
	"transplant/pkg/requestcontext"
)

type Registry interface {
	RegisterDonor(ctx context.Context, actor id.Actor, in service.RegisterDonorInput) (*models.Donor, error)
	RegisterPublicProfile(ctx context.Context, actor id.Actor, in models.ProfileInput) (*models.PublicProfile, error)
	UpdateDonorStatus(ctx context.Context, actor id.Actor, donorID id.DonorID, to models.Status) (*models.Donor, error)
	RequestConfidentialAccess(ctx context.Context, actor id.Actor, donorID id.DonorID) (models.ConsentRequest, error)
	RespondToConsentRequest(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, accept bool) (models.ConsentRequest, error)
}

type Disclosure interface {
	GetDonorView(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, donorID id.DonorID, requestID *id.RequestID) (disclosure.DonorView, error)
	ListDonors(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, filter donorStore.ListFilter) ([]disclosure.DonorView, error)
	GetConfidentialBundle(ctx context.Context, actor id.Actor, hospitalID id.HospitalID, donorID id.DonorID) (*disclosure.Bundle, error)
}

type Handler struct {
	registry   Registry
	disclosure Disclosure
	logger     *slog.Logger
}

func New(registry Registry, gate Disclosure, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, disclosure: gate, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/donors", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/", h.handleList)
		r.Route("/{donorID}", func(r chi.Router) {
			r.Get("/", h.handleView)
			r.Patch("/status", h.handleStatus)
			r.Post("/consent-requests", h.handleRequestAccess)
			r.Get("/bundle", h.handleBundle)
		})
	})
	r.Post("/profiles", h.handleRegisterProfile)
	r.Post("/me/consent-requests/{hospitalID}", h.handleRespond)
}

type documentBody struct {
	Name      string `json:"name" validate:"required"`
	ObjectKey string `json:"object_key" validate:"required"`
}

type registerDonorBody struct {
	HospitalID       string         `json:"hospital_id" validate:"omitempty,uuid"`
	UserID           string         `json:"user_id" validate:"omitempty,uuid"`
	Name             string         `json:"name" validate:"required"`
	Email            string         `json:"email" validate:"omitempty,email"`
	Phone            string         `json:"phone"`
	DateOfBirth      *time.Time     `json:"date_of_birth"`
	BloodType        string         `json:"blood_type" validate:"required,bloodtype"`
	WeightKg         float64        `json:"weight_kg" validate:"gte=0"`
	HeightCm         float64        `json:"height_cm" validate:"gte=0"`
	MedicalHistory   string         `json:"medical_history"`
	Allergies        []string       `json:"allergies"`
	OrganPreferences []string       `json:"organ_preferences" validate:"required,min=1,dive,organ"`
	IsLivingDonor    bool           `json:"is_living_donor"`
	City             string         `json:"city"`
	State            string         `json:"state"`
	Identity         []documentBody `json:"identity_documents" validate:"dive"`
	LabReports       []documentBody `json:"lab_reports" validate:"dive"`
	LegalConsent     []documentBody `json:"legal_consent_forms" validate:"dive"`
}

func (b registerDonorBody) input() (service.RegisterDonorInput, error) {
	in := service.RegisterDonorInput{Donor: models.DonorInput{
		Name:             b.Name,
		Contact:          models.Contact{Email: b.Email, Phone: b.Phone},
		DateOfBirth:      b.DateOfBirth,
		BloodType:        b.BloodType,
		WeightKg:         b.WeightKg,
		HeightCm:         b.HeightCm,
		MedicalHistory:   b.MedicalHistory,
		Allergies:        b.Allergies,
		OrganPreferences: b.OrganPreferences,
		IsLivingDonor:    b.IsLivingDonor,
		Location:         models.Location{City: b.City, State: b.State},
	}}
	if b.HospitalID != "" {
		hospitalID, err := id.ParseHospitalID(b.HospitalID)
		if err != nil {
			return in, err
		}
		in.HospitalID = hospitalID
	}
	if b.UserID != "" {
		userID, err := id.ParseUserID(b.UserID)
		if err != nil {
			return in, err
		}
		in.Donor.UserID = userID
	}
	if len(b.Identity)+len(b.LabReports)+len(b.LegalConsent) > 0 {
		in.Confidential = &models.ConfidentialRecord{
			IdentityDocuments: documents(b.Identity),
			LabReports:        documents(b.LabReports),
			LegalConsentForms: documents(b.LegalConsent),
		}
	}
	return in, nil
}

func documents(in []documentBody) []models.DocumentRef {
	out := make([]models.DocumentRef, 0, len(in))
	for _, d := range in {
		out = append(out, models.DocumentRef{Name: d.Name, ObjectKey: d.ObjectKey})
	}
	return out
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerDonorBody
	if !h.decode(w, r, &body) {
		return
	}
	in, err := body.input()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.registry.RegisterDonor(r.Context(), actorFrom(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	hospitalID, ok := h.viewerHospital(w, r, actor)
	if !ok {
		return
	}
	filter := donorStore.ListFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.Status = status
	}
	views, err := h.disclosure.ListDonors(r.Context(), actor, hospitalID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"donors": views})
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	hospitalID, ok := h.viewerHospital(w, r, actor)
	if !ok {
		return
	}
	var requestID *id.RequestID
	if raw := r.URL.Query().Get("request_id"); raw != "" {
		rid, err := id.ParseRequestID(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		requestID = &rid
	}
	view, err := h.disclosure.GetDonorView(r.Context(), actor, hospitalID, donorID, requestID)
	h.respond(w, r, view, err)
}

type statusBody struct {
	Status string `json:"status" validate:"required,oneof=active inactive deceased matched"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	var body statusBody
	if !h.decode(w, r, &body) {
		return
	}
	d, err := h.registry.UpdateDonorStatus(r.Context(), actorFrom(r), donorID, models.Status(body.Status))
	h.respond(w, r, d, err)
}

func (h *Handler) handleRequestAccess(w http.ResponseWriter, r *http.Request) {
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	cr, err := h.registry.RequestConfidentialAccess(r.Context(), actorFrom(r), donorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cr)
}

func (h *Handler) handleBundle(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	donorID, ok := h.donorID(w, r)
	if !ok {
		return
	}
	bundle, err := h.disclosure.GetConfidentialBundle(r.Context(), actor, actor.HospitalID, donorID)
	h.respond(w, r, bundle, err)
}

type profileBody struct {
	Name             string     `json:"name" validate:"required"`
	BloodType        string     `json:"blood_type" validate:"required,bloodtype"`
	DateOfBirth      *time.Time `json:"date_of_birth"`
	OrganPreferences []string   `json:"organ_preferences" validate:"required,min=1,dive,organ"`
	City             string     `json:"city"`
	State            string     `json:"state"`
}

func (h *Handler) handleRegisterProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if !h.decode(w, r, &body) {
		return
	}
	p, err := h.registry.RegisterPublicProfile(r.Context(), actorFrom(r), models.ProfileInput{
		Name:             body.Name,
		BloodType:        body.BloodType,
		DateOfBirth:      body.DateOfBirth,
		OrganPreferences: body.OrganPreferences,
		Location:         models.Location{City: body.City, State: body.State},
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

type respondBody struct {
	Accept *bool `json:"accept" validate:"required"`
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := id.ParseHospitalID(chi.URLParam(r, "hospitalID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body respondBody
	if !h.decode(w, r, &body) {
		return
	}
	cr, err := h.registry.RespondToConsentRequest(r.Context(), actorFrom(r), hospitalID, *body.Accept)
	h.respond(w, r, cr, err)
}

// viewerHospital resolves the hospital a read is made as. It defaults to
// the actor's own hospital.
func (h *Handler) viewerHospital(w http.ResponseWriter, r *http.Request, actor id.Actor) (id.HospitalID, bool) {
	raw := r.URL.Query().Get("hospital_id")
	if raw == "" {
		return actor.HospitalID, true
	}
	hospitalID, err := id.ParseHospitalID(raw)
	if err != nil {
		h.fail(w, r, err)
		return id.HospitalID{}, false
	}
	return hospitalID, true
}

func (h *Handler) donorID(w http.ResponseWriter, r *http.Request) (id.DonorID, bool) {
	donorID, err := id.ParseDonorID(chi.URLParam(r, "donorID"))
	if err != nil {
		h.fail(w, r, err)
		return id.DonorID{}, false
	}
	return donorID, true
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

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		h.logger.ErrorContext(r.Context(), "donor request failed",
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
