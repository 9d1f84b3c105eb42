package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"voice-session-orchestrator/internal/app"
	"voice-session-orchestrator/internal/service/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the local control API for the orchestrator.
func NewRouter(application *app.Application, orch *session.Orchestrator) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Session control
	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, orch.Snapshot())
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			id, err := orch.Start(req.Context())
			if errors.Is(err, session.ErrSessionActive) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
				return
			}
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{
					"sessionId": id,
					"error":     err.Error(),
				})
				return
			}
			writeJSON(w, http.StatusCreated, orch.Snapshot())
		})

		r.Delete("/", func(w http.ResponseWriter, _ *http.Request) {
			orch.Stop()
			writeJSON(w, http.StatusOK, orch.Snapshot())
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
