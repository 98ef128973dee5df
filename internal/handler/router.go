package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/ai-interview/client/internal/handler/control"
	"github.com/zhouzirui/ai-interview/client/internal/metrics"
	middlewarePkg "github.com/zhouzirui/ai-interview/client/internal/middleware"
	"github.com/zhouzirui/ai-interview/client/pkg/utils"
)

// NewRouter wires the local control API to the running session.
func NewRouter(s control.Session, reporter control.Reporter, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	controlHandler := control.New(s, reporter)
	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(middleware.Logger)
			controlHandler.RegisterRoutes(g)
		})
	})

	return r
}
