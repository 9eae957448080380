// Package handler exposes the integration router over HTTP. Handlers stay
// thin: decode, resolve the authenticated initiator, delegate, encode.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"istsi/internal/integration/models"
	"istsi/internal/integration/service"
	"istsi/internal/platform/metrics"
	"istsi/internal/platform/middleware"
	"istsi/internal/transport/http/shared"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// Service is the router surface the transport layer depends on.
type Service interface {
	ProcessBitcoinDeposit(ctx context.Context, req service.DepositRequest) (models.Result, error)
	ProcessTokenWithdrawal(ctx context.Context, req service.WithdrawalRequest) (models.Result, error)
	ProcessCrossTokenExchange(ctx context.Context, req service.ExchangeRequest) (models.Result, error)
	GetOperationStatus(ctx context.Context, opID id.OperationID) (models.Result, error)
	ListOperations(ctx context.Context, subject id.Address) ([]*models.Operation, error)
	EmergencyPause(ctx context.Context, caller id.Address) error
	ResumeOperations(ctx context.Context, caller id.Address) error
	DeploymentHealthCheck(ctx context.Context) models.HealthReport
}

// Handler handles integration router endpoints.
type Handler struct {
	logger    *slog.Logger
	router    Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(router Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		router:    router,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the operation routes with the standard middleware chain.
func (h *Handler) Register(r chi.Router) {
	opRouter := chi.NewRouter()
	opRouter.Use(middleware.Recovery(h.logger))
	opRouter.Use(middleware.RequestID)
	opRouter.Use(middleware.Logger(h.logger))
	opRouter.Use(middleware.Timeout(30 * time.Second))
	opRouter.Use(middleware.ContentTypeJSON)
	opRouter.Use(middleware.LatencyMiddleware(h.metrics))
	opRouter.Use(middleware.RequireAuth(h.validator, h.logger))

	opRouter.Post("/operations/deposit", h.handleDeposit)
	opRouter.Post("/operations/withdrawal", h.handleWithdrawal)
	opRouter.Post("/operations/exchange", h.handleExchange)
	opRouter.Get("/operations/{operationID}", h.handleGetOperation)
	opRouter.Get("/operations", h.handleListOperations)
	opRouter.Post("/admin/pause", h.handlePause)
	opRouter.Post("/admin/resume", h.handleResume)
	opRouter.Get("/health/deployment", h.handleDeploymentHealth)

	r.Mount("/", opRouter)
}

// initiator resolves the authenticated service identity from the context.
func (h *Handler) initiator(ctx context.Context) (id.Address, error) {
	raw := middleware.GetInitiator(ctx)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return id.ParseAddress(raw)
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	initiator, err := h.initiator(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req depositRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	subject, err := id.ParseAddress(req.Subject)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject address"))
		return
	}
	txHash, err := id.ParseTxHash(req.TxHash)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tx hash"))
		return
	}

	result, err := h.router.ProcessBitcoinDeposit(ctx, service.DepositRequest{
		Initiator:     initiator,
		Subject:       subject,
		AmountSats:    req.AmountSats,
		TxHash:        txHash,
		Confirmations: req.Confirmations,
		BlockHeight:   req.BlockHeight,
	})
	if err != nil {
		h.logOperationError(ctx, "deposit", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resultResponse(result))
}

func (h *Handler) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	initiator, err := h.initiator(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req withdrawalRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	subject, err := id.ParseAddress(req.Subject)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject address"))
		return
	}

	result, err := h.router.ProcessTokenWithdrawal(ctx, service.WithdrawalRequest{
		Initiator:   initiator,
		Subject:     subject,
		TokenAmount: req.TokenAmount,
		BTCAddress:  req.BTCAddress,
		ClientRef:   req.ClientRef,
	})
	if err != nil {
		h.logOperationError(ctx, "withdrawal", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resultResponse(result))
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	initiator, err := h.initiator(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req exchangeRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	subject, err := id.ParseAddress(req.Subject)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject address"))
		return
	}

	result, err := h.router.ProcessCrossTokenExchange(ctx, service.ExchangeRequest{
		Initiator:    initiator,
		Subject:      subject,
		SourceSymbol: req.SourceSymbol,
		DestSymbol:   req.DestSymbol,
		SourceAmount: req.SourceAmount,
		ClientRef:    req.ClientRef,
	})
	if err != nil {
		h.logOperationError(ctx, "exchange", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resultResponse(result))
}

func (h *Handler) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opID, err := id.ParseOperationID(chi.URLParam(r, "operationID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid operation id"))
		return
	}

	result, err := h.router.GetOperationStatus(ctx, opID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resultResponse(result))
}

func (h *Handler) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseAddress(r.URL.Query().Get("subject"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject query parameter is required"))
		return
	}

	ops, err := h.router.ListOperations(ctx, subject)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]operationDetail, 0, len(ops))
	for _, op := range ops {
		out = append(out, detailResponse(op))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"operations": out})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	initiator, err := h.initiator(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.router.EmergencyPause(ctx, initiator); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	initiator, err := h.initiator(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.router.ResumeOperations(ctx, initiator); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeploymentHealth(w http.ResponseWriter, r *http.Request) {
	report := h.router.DeploymentHealthCheck(r.Context())
	status := http.StatusOK
	for _, c := range report.Components {
		if !c.Reachable {
			status = http.StatusServiceUnavailable
			break
		}
	}
	shared.WriteJSON(w, status, report)
}

func (h *Handler) logOperationError(ctx context.Context, kind string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.ErrorContext(ctx, "operation rejected before protocol start",
		"kind", kind,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(ctx),
	)
}
