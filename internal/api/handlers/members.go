package handlers

import (
	"net/http"

	"github.com/dvloznov/family-bank/internal/api/middleware"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/members"
	"github.com/dvloznov/family-bank/internal/rates"
	"github.com/dvloznov/family-bank/internal/settlement"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/dvloznov/family-bank/internal/worker"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const summaryCurvePoints = 30

// memberResponse is a member as shown to clients. The PIN never leaves
// the server.
type memberResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Avatar           string `json:"avatar"`
	CreatedAt        int64  `json:"created_at"`
	LastInterestDate int64  `json:"last_interest_date"`
}

func toMemberResponse(m *domain.Member) memberResponse {
	return memberResponse{
		ID:               m.ID,
		Name:             m.Name,
		Avatar:           m.Avatar,
		CreatedAt:        m.CreatedAt,
		LastInterestDate: m.LastInterestDate,
	}
}

type memberSummary struct {
	memberResponse
	Balance           decimal.Decimal      `json:"balance"`
	EffectiveRate     decimal.Decimal      `json:"effective_rate"`
	MonthlyProjection decimal.Decimal      `json:"monthly_projection"`
	Curve             []ledger.Point       `json:"curve"`
	Achievements      []ledger.Achievement `json:"achievements"`
}

type profileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	PIN    string `json:"pin"`
}

// MembersHandler handles member endpoints, including on-demand settlement.
type MembersHandler struct {
	members *members.Service
	repo    store.MemberRepository
	ledger  *ledger.Service
	rates   *rates.Provider
	engine  *settlement.Engine
	guard   *settlement.Guard
	log     zerolog.Logger
}

// NewMembersHandler creates a members handler. guard serializes the
// settlements started through the API.
func NewMembersHandler(m *members.Service, repo store.MemberRepository, l *ledger.Service, r *rates.Provider, engine *settlement.Engine, guard *settlement.Guard, log zerolog.Logger) *MembersHandler {
	return &MembersHandler{
		members: m,
		repo:    repo,
		ledger:  l,
		rates:   r,
		engine:  engine,
		guard:   guard,
		log:     log,
	}
}

// Routes registers the member endpoints on mux.
func (h *MembersHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/members", h.ListMembers)
	mux.HandleFunc("POST /api/members", h.CreateMember)
	mux.HandleFunc("GET /api/members/{id}", h.GetMember)
	mux.HandleFunc("PUT /api/members/{id}", h.UpdateMember)
	mux.HandleFunc("DELETE /api/members/{id}", h.DeleteMember)
	mux.HandleFunc("POST /api/members/{id}/verify-pin", h.VerifyPIN)
	mux.HandleFunc("POST /api/members/{id}/settle", h.Settle)
}

// ListMembers handles GET /api/members
func (h *MembersHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.members.List(ctx, middleware.HouseholdFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err, "list members")
		return
	}

	out := make([]memberResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toMemberResponse(m))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"members": out,
		"count":   len(out),
	})
}

// CreateMember handles POST /api/members
func (h *MembersHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	m, err := h.members.Create(ctx, middleware.HouseholdFromContext(ctx), members.Profile(req))
	if err != nil {
		writeServiceError(w, r, err, "create member")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toMemberResponse(m))
}

// GetMember handles GET /api/members/{id}. The response carries the
// folded balance, the balance curve and the achievements.
func (h *MembersHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	householdID := middleware.HouseholdFromContext(ctx)
	memberID := r.PathValue("id")

	m, err := h.members.Get(ctx, householdID, memberID)
	if err != nil {
		writeServiceError(w, r, err, "get member")
		return
	}
	txs, err := h.ledger.Transactions(ctx, householdID, memberID)
	if err != nil {
		writeServiceError(w, r, err, "load transactions")
		return
	}
	rate, err := h.rates.EffectiveRate(ctx, householdID)
	if err != nil {
		writeServiceError(w, r, err, "load rates")
		return
	}

	balance := ledger.Fold(txs, memberID)
	middleware.WriteJSON(w, http.StatusOK, memberSummary{
		memberResponse:    toMemberResponse(m),
		Balance:           balance.Round(2),
		EffectiveRate:     rate,
		MonthlyProjection: rates.MonthlyProjection(balance, rate),
		Curve:             ledger.Curve(txs, memberID, summaryCurvePoints),
		Achievements:      ledger.Achievements(txs, memberID),
	})
}

// UpdateMember handles PUT /api/members/{id}
func (h *MembersHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	m, err := h.members.UpdateProfile(ctx, middleware.HouseholdFromContext(ctx), r.PathValue("id"), members.Profile(req))
	if err != nil {
		writeServiceError(w, r, err, "update member")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toMemberResponse(m))
}

// DeleteMember handles DELETE /api/members/{id}. The member's
// transactions are deleted with it.
func (h *MembersHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.members.Delete(ctx, middleware.HouseholdFromContext(ctx), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, "delete member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyPIN handles POST /api/members/{id}/verify-pin
func (h *MembersHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	ok, err := h.members.CheckPIN(ctx, middleware.HouseholdFromContext(ctx), r.PathValue("id"), req.PIN)
	if err != nil {
		writeServiceError(w, r, err, "verify pin")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

// Settle handles POST /api/members/{id}/settle. It runs one settlement
// attempt synchronously and returns its result.
func (h *MembersHandler) Settle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := worker.Settle(ctx, h.repo, h.ledger, h.rates, h.engine, h.guard, middleware.HouseholdFromContext(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "settle interest")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
