package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/family-bank/internal/api/middleware"
	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/notify"
	"github.com/dvloznov/family-bank/internal/rates"
	"github.com/dvloznov/family-bank/internal/session"
	"github.com/dvloznov/family-bank/internal/settlement"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FeedHandler serves the live member view over a websocket. Each
// connection is one active member view with its own settlement guard.
type FeedHandler struct {
	hub        *notify.Hub
	subscriber store.Subscriber
	engine     *settlement.Engine
	rates      *rates.Provider
	clock      clock.Clock
	cooldown   time.Duration
	log        zerolog.Logger
}

// NewFeedHandler creates a feed handler.
func NewFeedHandler(hub *notify.Hub, sub store.Subscriber, engine *settlement.Engine, r *rates.Provider, clk clock.Clock, cooldown time.Duration, log zerolog.Logger) *FeedHandler {
	return &FeedHandler{
		hub:        hub,
		subscriber: sub,
		engine:     engine,
		rates:      r,
		clock:      clk,
		cooldown:   cooldown,
		log:        log,
	}
}

// Routes registers the feed endpoint on mux.
func (h *FeedHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.ServeWS)
}

// ServeWS handles GET /ws?member_id=. Snapshots of the member are pushed
// as "snapshot" events to the clients watching that member. Interest
// credits go to every client of the household as "interest_credited".
func (h *FeedHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	householdID := middleware.HouseholdFromContext(r.Context())
	memberID := r.URL.Query().Get("member_id")
	if memberID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "member_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	h.hub.RegisterMember(householdID, memberID, conn)

	log := logger.ForMember(logger.FromContext(r.Context()), householdID, memberID)
	ctx := logger.WithContext(r.Context(), log)

	guard := settlement.NewGuard(h.clock, h.cooldown)
	defer guard.Close()

	view, err := session.Open(ctx, session.Config{
		HouseholdID: householdID,
		MemberID:    memberID,
		Subscriber:  h.subscriber,
		Engine:      h.engine,
		Guard:       guard,
		Rates:       h.rates,
		OnSnapshot: func(s session.Snapshot) {
			if err := h.hub.PublishMember(householdID, memberID, notify.Event{Type: notify.EventSnapshot, Data: s}); err != nil {
				log.Warn().Err(err).Msg("Dropped snapshot event")
			}
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open member view")
		h.hub.Unregister(conn)
		return
	}
	defer view.Close()

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(conn)
}
