// internal/app/features/questions/routes.go
package questions

import (
	"github.com/dalemusser/gather/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/questions. Reading is public; creating
// requires a signed-in user.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Get("/today", h.ServeToday)
	r.Get("/history", h.ServeHistory)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Post("/", h.HandleCreate)
	})

	return r
}
