package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"csms/backend/services/ocpp-server/internal/http/handlers"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	ChargerHandlers *handlers.ChargerHandlers
	HealthHandler   http.HandlerFunc
	// OCPPHandler upgrades charge point connections under OCPPPath.
	OCPPHandler http.HandlerFunc
	OCPPPath    string
	// EventsHandler streams domain events to browsers. Optional.
	EventsHandler http.HandlerFunc
}

// NewRouter wires HTTP routes. authMiddleware guards the operator API and is skipped when nil.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", deps.HealthHandler)

	ocppPath := deps.OCPPPath
	if ocppPath == "" {
		ocppPath = "/ocpp/"
	}
	r.Get(ocppPath+"*", deps.OCPPHandler)
	if deps.EventsHandler != nil {
		r.Get("/events/ws", deps.EventsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Route("/chargers", func(r chi.Router) {
			h := deps.ChargerHandlers
			r.Get("/connected", h.Connected)
			r.Get("/{id}", h.Station)
			r.Post("/{id}/remote-start", h.RemoteStart)
			r.Post("/{id}/remote-stop", h.RemoteStop)
			r.Post("/{id}/unlock", h.Unlock)
			r.Post("/{id}/reset", h.Reset)
			r.Post("/{id}/reserve", h.Reserve)
			r.Post("/{id}/cancel-reservation", h.CancelReservation)
			r.Post("/{id}/diagnostics", h.Diagnostics)
		})
	})

	return r
}
