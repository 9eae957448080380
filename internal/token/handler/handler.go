// Package handler exposes the token ledger's holder-facing endpoints. The
// authenticated identity is always the acting party: transfers debit the
// caller, approvals grant from the caller's balance. Mint and burn have no
// HTTP surface; only the integration router reaches them, in process.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"istsi/internal/platform/metrics"
	"istsi/internal/platform/middleware"
	"istsi/internal/transport/http/shared"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// Service is the ledger surface the transport layer depends on.
type Service interface {
	BalanceOf(ctx context.Context, addr id.Address) (int64, error)
	TotalSupply(ctx context.Context) (int64, error)
	Transfer(ctx context.Context, from, to id.Address, amount int64) error
	Approve(ctx context.Context, owner, spender id.Address, amount int64, expiration time.Time) error
	Allowance(ctx context.Context, owner, spender id.Address) (int64, error)
	TransferFrom(ctx context.Context, spender, owner, to id.Address, amount int64) error
	ComplianceTransfer(ctx context.Context, from, to id.Address, amount int64) error
}

// Handler handles token ledger endpoints for one token symbol.
type Handler struct {
	logger    *slog.Logger
	ledger    Service
	symbol    string
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(ledger Service, symbol string, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		ledger:    ledger,
		symbol:    symbol,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the ledger routes with the standard middleware chain.
func (h *Handler) Register(r chi.Router) {
	tokenRouter := chi.NewRouter()
	tokenRouter.Use(middleware.Recovery(h.logger))
	tokenRouter.Use(middleware.RequestID)
	tokenRouter.Use(middleware.Logger(h.logger))
	tokenRouter.Use(middleware.Timeout(30 * time.Second))
	tokenRouter.Use(middleware.ContentTypeJSON)
	tokenRouter.Use(middleware.LatencyMiddleware(h.metrics))
	tokenRouter.Use(middleware.RequireAuth(h.validator, h.logger))

	tokenRouter.Get("/balances/{address}", h.handleBalance)
	tokenRouter.Get("/supply", h.handleSupply)
	tokenRouter.Post("/transfer", h.handleTransfer)
	tokenRouter.Post("/compliance-transfer", h.handleComplianceTransfer)
	tokenRouter.Post("/approve", h.handleApprove)
	tokenRouter.Get("/allowances/{owner}/{spender}", h.handleAllowance)
	tokenRouter.Post("/transfer-from", h.handleTransferFrom)

	r.Mount("/tokens/"+h.symbol, tokenRouter)
}

type transferRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type approveRequest struct {
	Spender    string    `json:"spender"`
	Amount     int64     `json:"amount"`
	Expiration time.Time `json:"expiration"`
}

type transferFromRequest struct {
	Owner  string `json:"owner"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (h *Handler) caller(ctx context.Context) (id.Address, error) {
	raw := middleware.GetInitiator(ctx)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return id.ParseAddress(raw)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	balance, err := h.ledger.BalanceOf(r.Context(), addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"address": addr.String(),
		"symbol":  h.symbol,
		"balance": balance,
	})
}

func (h *Handler) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.ledger.TotalSupply(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"symbol":       h.symbol,
		"total_supply": supply,
	})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.ledger.Transfer)
}

func (h *Handler) handleComplianceTransfer(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.ledger.ComplianceTransfer)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request, move func(context.Context, id.Address, id.Address, int64) error) {
	ctx := r.Context()
	from, err := h.caller(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req transferRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	to, err := id.ParseAddress(req.To)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid recipient address"))
		return
	}

	if err := move(ctx, from, to, req.Amount); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := h.caller(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req approveRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	spender, err := id.ParseAddress(req.Spender)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid spender address"))
		return
	}

	if err := h.ledger.Approve(ctx, owner, spender, req.Amount, req.Expiration); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, err := id.ParseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid owner address"))
		return
	}
	spender, err := id.ParseAddress(chi.URLParam(r, "spender"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid spender address"))
		return
	}

	remaining, err := h.ledger.Allowance(r.Context(), owner, spender)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"owner":     owner.String(),
		"spender":   spender.String(),
		"remaining": remaining,
	})
}

func (h *Handler) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	spender, err := h.caller(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req transferFromRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	owner, err := id.ParseAddress(req.Owner)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid owner address"))
		return
	}
	to, err := id.ParseAddress(req.To)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid recipient address"))
		return
	}

	if err := h.ledger.TransferFrom(ctx, spender, owner, to, req.Amount); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
