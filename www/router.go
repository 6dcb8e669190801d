// Package www serves the engine's operations as a JSON API with a
// server-sent event stream.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"robotcore/engine"
	"robotcore/store"
)

type Handlers struct {
	engine     *engine.Engine
	db         *store.DB
	configPath string
	eventHub   *EventHub
	log        zerolog.Logger
}

// NewRouter builds the API. db may be nil, in which case edits live only in
// memory and the run history routes answer 503. Robot settings changed over
// the API are written back to configPath when it is set.
func NewRouter(eng *engine.Engine, db *store.DB, configPath string, log zerolog.Logger) (http.Handler, func()) {
	log = log.With().Str("component", "www").Logger()
	hub := NewEventHub(log)
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:     eng,
		db:         db,
		configPath: configPath,
		eventHub:   hub,
		log:        log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/events", hub.SSEHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)
		r.Get("/connection", h.apiConnection)
		r.Post("/reconnect", h.apiReconnect)
		r.Get("/robot", h.apiRobotConfig)
		r.Put("/robot", h.apiUpdateRobotConfig)

		r.Get("/views/{category}", h.apiCachedView)
		r.Get("/position/history", h.apiPositionHistory)

		r.Get("/points", h.apiListPoints)
		r.Get("/points/{id}", h.apiPointInfo)
		r.Put("/points/{id}", h.apiPutPoint)
		r.Delete("/points/{id}", h.apiDeletePoint)

		r.Get("/services", h.apiListServices)
		r.Get("/services/{name}", h.apiServiceHealth)
		r.Get("/power-cycle", h.apiPowerCycleStatus)
		r.Post("/power-cycle", h.apiPowerCycle)

		r.Get("/actions", h.apiListActions)
		r.Post("/actions/{id}", h.apiExecuteAction)
		r.Post("/stop", h.apiStop)

		r.Get("/workflows", h.apiListTemplates)
		r.Put("/workflows/{id}", h.apiPutTemplate)
		r.Post("/workflows/{id}/runs", h.apiSubmitWorkflow)
		r.Get("/runs", h.apiListRuns)
		r.Get("/runs/{id}", h.apiGetRun)
	})

	return r, hub.Stop
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/events" {
			return
		}
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
