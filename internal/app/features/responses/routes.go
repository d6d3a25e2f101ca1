// internal/app/features/responses/routes.go
package responses

import (
	"github.com/dalemusser/gather/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/responses.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/group/{groupID}", h.ServeGroupResponses)
	r.Post("/", h.HandleSubmit)
	r.Put("/{id}/like", h.HandleToggleLike)
	r.Post("/{id}/reply", h.HandleReply)

	return r
}
