// Package handler exposes the KYC registry admin and query endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"istsi/internal/kyc/models"
	"istsi/internal/platform/metrics"
	"istsi/internal/platform/middleware"
	"istsi/internal/transport/http/shared"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// Service is the registry surface the transport layer depends on.
type Service interface {
	RegisterUser(ctx context.Context, caller, addr id.Address, tier models.Tier) error
	UpdateTier(ctx context.Context, caller, addr id.Address, tier models.Tier) error
	Deactivate(ctx context.Context, caller, addr id.Address) error
	SetTierLimits(ctx context.Context, caller id.Address, tier models.Tier, limits models.TierLimits) error
	GetRecord(ctx context.Context, addr id.Address) (*models.ComplianceRecord, error)
}

// Handler handles KYC registry endpoints.
type Handler struct {
	logger    *slog.Logger
	registry  Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(registry Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		registry:  registry,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the registry routes with the standard middleware chain.
func (h *Handler) Register(r chi.Router) {
	kycRouter := chi.NewRouter()
	kycRouter.Use(middleware.Recovery(h.logger))
	kycRouter.Use(middleware.RequestID)
	kycRouter.Use(middleware.Logger(h.logger))
	kycRouter.Use(middleware.Timeout(30 * time.Second))
	kycRouter.Use(middleware.ContentTypeJSON)
	kycRouter.Use(middleware.LatencyMiddleware(h.metrics))
	kycRouter.Use(middleware.RequireAuth(h.validator, h.logger))

	kycRouter.Post("/users", h.handleRegisterUser)
	kycRouter.Get("/users/{address}", h.handleGetRecord)
	kycRouter.Put("/users/{address}/tier", h.handleUpdateTier)
	kycRouter.Post("/users/{address}/deactivate", h.handleDeactivate)
	kycRouter.Put("/tiers/{tier}/limits", h.handleSetTierLimits)

	r.Mount("/kyc", kycRouter)
}

type registerUserRequest struct {
	Address string `json:"address"`
	Tier    int    `json:"tier"`
}

type updateTierRequest struct {
	Tier int `json:"tier"`
}

type tierLimitsRequest struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

type complianceRecordResponse struct {
	Address      string    `json:"address"`
	Tier         int       `json:"tier"`
	DailySpent   int64     `json:"daily_spent"`
	MonthlySpent int64     `json:"monthly_spent"`
	IsActive     bool      `json:"is_active"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (h *Handler) caller(ctx context.Context) (id.Address, error) {
	raw := middleware.GetInitiator(ctx)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return id.ParseAddress(raw)
}

func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := h.caller(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req registerUserRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	addr, err := id.ParseAddress(req.Address)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	if err := h.registry.RegisterUser(ctx, caller, addr, models.Tier(req.Tier)); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	rec, err := h.registry.GetRecord(ctx, addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, complianceRecordResponse{
		Address:      rec.Address.String(),
		Tier:         int(rec.Tier),
		DailySpent:   rec.DailySpent,
		MonthlySpent: rec.MonthlySpent,
		IsActive:     rec.IsActive,
		RegisteredAt: rec.RegisteredAt,
	})
}

func (h *Handler) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := h.caller(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	var req updateTierRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.registry.UpdateTier(ctx, caller, addr, models.Tier(req.Tier)); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := h.caller(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	if err := h.registry.Deactivate(ctx, caller, addr); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetTierLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := h.caller(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tier, err := parseTier(chi.URLParam(r, "tier"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req tierLimitsRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	limits := models.TierLimits{Daily: req.Daily, Monthly: req.Monthly}
	if err := h.registry.SetTierLimits(ctx, caller, tier, limits); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTier(s string) (models.Tier, error) {
	switch s {
	case "1", "basic":
		return models.TierBasic, nil
	case "2", "verified":
		return models.TierVerified, nil
	case "3", "institutional":
		return models.TierInstitutional, nil
	default:
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "unknown tier %q", s)
	}
}
