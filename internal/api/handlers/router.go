package handlers

import (
	"net/http"

	"github.com/dvloznov/family-bank/internal/api/middleware"
	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/rs/zerolog"
)

// Routes is implemented by every endpoint group.
type Routes interface {
	Routes(mux *http.ServeMux)
}

// NewRouter registers the endpoint groups and /health, then applies the
// middleware chain. Every path except /health requires a household.
func NewRouter(log zerolog.Logger, clk clock.Clock, groups ...Routes) http.Handler {
	mux := http.NewServeMux()
	for _, g := range groups {
		g.Routes(mux)
	}
	mux.HandleFunc("GET /health", Health(clk))

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth("/health")(mux),
				),
			),
		),
	)
}
