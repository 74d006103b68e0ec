package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/family-bank/internal/api/middleware"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/rates"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxProjectionYears = 50

type ratesResponse struct {
	*domain.Rates
	EffectiveRate decimal.Decimal `json:"effective_rate"`
}

// RatesHandler handles the household rates document and the savings
// calculator.
type RatesHandler struct {
	rates *rates.Provider
	log   zerolog.Logger
}

// NewRatesHandler creates a new rates handler.
func NewRatesHandler(p *rates.Provider, log zerolog.Logger) *RatesHandler {
	return &RatesHandler{
		rates: p,
		log:   log,
	}
}

// Routes registers the rates endpoints on mux.
func (h *RatesHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rates", h.GetRates)
	mux.HandleFunc("PUT /api/rates", h.SetManual)
	mux.HandleFunc("PUT /api/rates/auto", h.SetAutoMode)
	mux.HandleFunc("GET /api/rates/projection", h.Projection)
}

// GetRates handles GET /api/rates. A missing document is created with
// the defaults and the daily market drift is applied when due.
func (h *RatesHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	householdID := middleware.HouseholdFromContext(ctx)

	cur, _, err := h.rates.Refresh(ctx, householdID)
	if err != nil {
		writeServiceError(w, r, err, "load rates")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ratesResponse{Rates: cur, EffectiveRate: cur.Effective()})
}

// SetManual handles PUT /api/rates
func (h *RatesHandler) SetManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseRate  decimal.Decimal `json:"base_rate"`
		BonusRate decimal.Decimal `json:"bonus_rate"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	cur, err := h.rates.SetManual(ctx, middleware.HouseholdFromContext(ctx), req.BaseRate, req.BonusRate)
	if err != nil {
		writeServiceError(w, r, err, "save rates")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ratesResponse{Rates: cur, EffectiveRate: cur.Effective()})
}

// SetAutoMode handles PUT /api/rates/auto
func (h *RatesHandler) SetAutoMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Auto bool `json:"auto"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	cur, err := h.rates.SetAutoMode(ctx, middleware.HouseholdFromContext(ctx), req.Auto)
	if err != nil {
		writeServiceError(w, r, err, "save rates")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ratesResponse{Rates: cur, EffectiveRate: cur.Effective()})
}

// Projection handles GET /api/rates/projection?principal=&monthly=&years=.
// The rate defaults to the household's effective rate.
func (h *RatesHandler) Projection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	principal, err := decimalParam(query.Get("principal"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid principal")
		return
	}
	monthly, err := decimalParam(query.Get("monthly"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid monthly")
		return
	}
	years := 10
	if s := query.Get("years"); s != "" {
		years, err = strconv.Atoi(s)
		if err != nil || years < 1 || years > maxProjectionYears {
			middleware.WriteError(w, http.StatusBadRequest, "years must be between 1 and 50")
			return
		}
	}

	var rate decimal.Decimal
	if s := query.Get("rate"); s != "" {
		if rate, err = decimal.NewFromString(s); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid rate")
			return
		}
	} else if rate, err = h.rates.EffectiveRate(ctx, middleware.HouseholdFromContext(ctx)); err != nil {
		writeServiceError(w, r, err, "load rates")
		return
	}

	future := rates.FutureValue(principal, monthly, rate, years).Round(2)
	invested := rates.TotalInvested(principal, monthly, years)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rate":           rate,
		"years":          years,
		"future_value":   future,
		"total_invested": invested,
		"interest":       future.Sub(invested),
	})
}

func decimalParam(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
