package handlers

import (
	"net/http"

	"github.com/dvloznov/family-bank/internal/api/middleware"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/members"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionsHandler handles ledger endpoints.
type TransactionsHandler struct {
	ledger  *ledger.Service
	members *members.Service
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(l *ledger.Service, m *members.Service, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		ledger:  l,
		members: m,
		log:     log,
	}
}

// Routes registers the transaction endpoints on mux.
func (h *TransactionsHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/members/{id}/transactions", h.ListTransactions)
	mux.HandleFunc("POST /api/members/{id}/transactions", h.CreateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", h.EditTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.DeleteTransaction)
}

// ListTransactions handles GET /api/members/{id}/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID := r.PathValue("id")

	txs, err := h.ledger.Transactions(ctx, middleware.HouseholdFromContext(ctx), memberID)
	if err != nil {
		writeServiceError(w, r, err, "list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
		"balance":      ledger.Fold(txs, memberID).Round(2),
	})
}

// CreateTransaction handles POST /api/members/{id}/transactions. Only
// income and expense can be recorded; interest comes from settlement.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type       domain.TransactionType `json:"type"`
		Amount     decimal.Decimal        `json:"amount"`
		Note       string                 `json:"note"`
		RecordedBy string                 `json:"recorded_by"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type != domain.TypeIncome && req.Type != domain.TypeExpense {
		middleware.WriteError(w, http.StatusBadRequest, "type must be income or expense")
		return
	}

	ctx := r.Context()
	householdID := middleware.HouseholdFromContext(ctx)
	memberID := r.PathValue("id")

	if _, err := h.members.Get(ctx, householdID, memberID); err != nil {
		writeServiceError(w, r, err, "load member")
		return
	}

	tx, err := h.ledger.Record(ctx, householdID, ledger.Entry{
		MemberID:   memberID,
		Type:       req.Type,
		Amount:     req.Amount,
		Note:       req.Note,
		RecordedBy: req.RecordedBy,
	})
	if err != nil {
		writeServiceError(w, r, err, "record transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// EditTransaction handles PUT /api/transactions/{id}. Only amount and
// note can change.
func (h *TransactionsHandler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Note   string          `json:"note"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	txID := r.PathValue("id")

	if err := h.ledger.Edit(ctx, middleware.HouseholdFromContext(ctx), txID, req.Amount, req.Note); err != nil {
		writeServiceError(w, r, err, "edit transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"id":     txID,
		"status": "updated",
	})
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.ledger.Remove(ctx, middleware.HouseholdFromContext(ctx), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, "delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
