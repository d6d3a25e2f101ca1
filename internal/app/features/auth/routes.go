// internal/app/features/auth/routes.go
package auth

import (
	sysauth "github.com/dalemusser/gather/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/auth.
func Routes(h *Handler, sm *sysauth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Get("/me", h.ServeMe)
		pr.Get("/activity", h.ServeActivity)
	})

	return r
}
