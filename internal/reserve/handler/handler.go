// Package handler exposes the reserve manager's query and settlement
// endpoints. All mutation of reserves flows through the integration router;
// this surface only reads state and acknowledges external Bitcoin payouts.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"istsi/internal/platform/metrics"
	"istsi/internal/platform/middleware"
	"istsi/internal/reserve/models"
	"istsi/internal/transport/http/shared"
	id "istsi/pkg/domain"
	dErrors "istsi/pkg/domain-errors"
)

// Service is the reserve surface the transport layer depends on.
type Service interface {
	GenerateProofOfReserves(ctx context.Context) (models.ProofOfReserves, error)
	State(ctx context.Context) (models.ReserveState, error)
	GetDeposit(ctx context.Context, hash id.TxHash) (*models.DepositRecord, error)
	GetWithdrawal(ctx context.Context, wid id.WithdrawalID) (*models.WithdrawalRecord, error)
	CompleteWithdrawal(ctx context.Context, wid id.WithdrawalID) error
}

// Handler handles reserve manager endpoints.
type Handler struct {
	logger    *slog.Logger
	reserve   Service
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(reserve Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		reserve:   reserve,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the reserve routes with the standard middleware chain.
func (h *Handler) Register(r chi.Router) {
	reserveRouter := chi.NewRouter()
	reserveRouter.Use(middleware.Recovery(h.logger))
	reserveRouter.Use(middleware.RequestID)
	reserveRouter.Use(middleware.Logger(h.logger))
	reserveRouter.Use(middleware.Timeout(30 * time.Second))
	reserveRouter.Use(middleware.ContentTypeJSON)
	reserveRouter.Use(middleware.LatencyMiddleware(h.metrics))
	reserveRouter.Use(middleware.RequireAuth(h.validator, h.logger))

	reserveRouter.Get("/proof", h.handleProof)
	reserveRouter.Get("/state", h.handleState)
	reserveRouter.Get("/deposits/{txHash}", h.handleGetDeposit)
	reserveRouter.Get("/withdrawals/{withdrawalID}", h.handleGetWithdrawal)
	reserveRouter.Post("/withdrawals/{withdrawalID}/complete", h.handleCompleteWithdrawal)

	r.Mount("/reserve", reserveRouter)
}

type stateResponse struct {
	TotalReserves   int64 `json:"total_reserves"`
	TotalIssued     int64 `json:"total_issued"`
	RatioBPS        int64 `json:"ratio_bps"`
	MinimumRatioBPS int64 `json:"minimum_ratio_bps"`
}

type depositResponse struct {
	TxHash        string    `json:"tx_hash"`
	Amount        int64     `json:"amount"`
	Confirmations uint32    `json:"confirmations"`
	BlockHeight   uint64    `json:"block_height"`
	User          string    `json:"user"`
	Processed     bool      `json:"processed"`
	RegisteredAt  time.Time `json:"registered_at"`
}

type withdrawalResponse struct {
	ID         string    `json:"id"`
	User       string    `json:"user"`
	Amount     int64     `json:"amount"`
	BTCAddress string    `json:"btc_address"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) handleProof(w http.ResponseWriter, r *http.Request) {
	proof, err := h.reserve.GenerateProofOfReserves(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, proof)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.reserve.State(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stateResponse{
		TotalReserves:   state.TotalReserves,
		TotalIssued:     state.TotalIssued,
		RatioBPS:        state.RatioBPS(),
		MinimumRatioBPS: state.MinimumRatioBPS,
	})
}

func (h *Handler) handleGetDeposit(w http.ResponseWriter, r *http.Request) {
	hash, err := id.ParseTxHash(chi.URLParam(r, "txHash"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tx hash"))
		return
	}

	rec, err := h.reserve.GetDeposit(r.Context(), hash)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if rec == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "deposit not found"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, depositResponse{
		TxHash:        rec.TxHash.String(),
		Amount:        rec.Amount,
		Confirmations: rec.Confirmations,
		BlockHeight:   rec.BlockHeight,
		User:          rec.User.String(),
		Processed:     rec.Processed,
		RegisteredAt:  rec.RegisteredAt,
	})
}

func (h *Handler) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	wid, err := id.ParseWithdrawalID(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid withdrawal id"))
		return
	}

	rec, err := h.reserve.GetWithdrawal(r.Context(), wid)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, withdrawalResponse{
		ID:         rec.ID.String(),
		User:       rec.User.String(),
		Amount:     rec.Amount,
		BTCAddress: rec.BTCAddress,
		Status:     string(rec.Status),
		CreatedAt:  rec.CreatedAt,
	})
}

func (h *Handler) handleCompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	wid, err := id.ParseWithdrawalID(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid withdrawal id"))
		return
	}

	if err := h.reserve.CompleteWithdrawal(r.Context(), wid); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
