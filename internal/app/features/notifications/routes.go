// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/dalemusser/gather/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/notifications. The public key is readable
// before sign-in so the client can prepare a subscription.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Get("/vapid-public-key", h.ServePublicKey)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Post("/subscribe", h.HandleSubscribe)
		pr.Delete("/unsubscribe", h.HandleUnsubscribe)
	})

	return r
}
