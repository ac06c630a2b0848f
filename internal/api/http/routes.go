package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// It sets up task routes, the peer status endpoint, health check, and Prometheus metrics endpoint.
func NewRouter(taskService TaskServiceI, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	taskHandler := NewTaskHandler(taskService, logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.CreateTask)
		r.Post("/dispatch", taskHandler.Redispatch)
		r.Post("/remote-status", taskHandler.GetRemoteStatus)
		r.Get("/parent/{parentID}/status", taskHandler.GetStatusByParent)
		r.Get("/{taskID}", taskHandler.GetTask)
		r.Get("/{taskID}/status", taskHandler.GetStatus)
		r.Put("/{taskID}/status", taskHandler.UpdateStatus)
	})

	r.Post("/api/external.php", taskHandler.ExternalStatus)
	r.Post("/{folder}/api/external.php", taskHandler.ExternalStatus)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
