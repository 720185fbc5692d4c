package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "transplant/internal/jwt_token"
	"transplant/internal/platform/config"
	dErrors "transplant/pkg/domain-errors"
	"transplant/pkg/platform/audit"
	"transplant/pkg/platform/httputil"
	adminmw "transplant/pkg/platform/middleware/admin"
	authmw "transplant/pkg/platform/middleware/auth"
	"transplant/pkg/platform/middleware/metadata"
	request "transplant/pkg/platform/middleware/request"
	"transplant/pkg/platform/middleware/requesttime"
)

// routeRegistrar is implemented by each bounded context's HTTP handler.
type routeRegistrar interface {
	Register(r chi.Router)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type auditReader interface {
	ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
}

func newRouter(cfg config.Server, log *slog.Logger, health healthChecker, trail auditReader, handlers ...routeRegistrar) http.Handler {
	r := chi.NewRouter()

	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", request.HeaderRequestID, "X-Admin-Token"},
		ExposedHeaders: []string{request.HeaderRequestID},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := health.Health(ctx); err != nil {
			log.WarnContext(ctx, "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimit, cfg.RateWindow))
		r.Use(authmw.RequireAuth(jwttoken.NewValidator(jwtService), log))
		for _, h := range handlers {
			h.Register(r)
		}
	})

	// Operator access uses a static admin token instead of a bearer token.
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.AdminTokenHash, log))
		r.Get("/audit", handleAuditTrail(trail))
		for _, h := range handlers {
			h.Register(r)
		}
	})

	return r
}

// handleAuditTrail lists entries for one entity, or the most recent entries
// when no entity is named.
func handleAuditTrail(trail auditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		entityType, entityID := q.Get("entity_type"), q.Get("entity_id")

		var (
			entries []audit.Entry
			err     error
		)
		switch {
		case entityType != "" && entityID != "":
			entries, err = trail.ListByEntity(r.Context(), audit.EntityType(entityType), entityID)
		case entityType != "" || entityID != "":
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entity_type and entity_id must be given together"))
			return
		default:
			limit := 100
			if raw := q.Get("limit"); raw != "" {
				limit, err = strconv.Atoi(raw)
				if err != nil || limit <= 0 {
					httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
					return
				}
			}
			entries, err = trail.ListRecent(r.Context(), limit)
		}
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}
