// internal/app/features/groups/routes.go
package groups

import (
	"net/http"

	"github.com/dalemusser/gather/internal/app/system/auth"
	"github.com/dalemusser/gather/internal/app/system/authz"
	"github.com/dalemusser/gather/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/groups. activityLimit throttles polling per
// user; nil disables it.
func Routes(h *Handler, sm *auth.SessionManager, activityLimit *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()

	// Everything under /groups requires authentication
	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/", h.ServeList)
		pr.Post("/", h.HandleCreate)
		pr.Post("/join", h.HandleJoin)
		pr.Get("/{id}", h.ServeGroup)
		pr.Delete("/{id}/leave", h.HandleLeave)

		pr.Group(func(ar chi.Router) {
			if activityLimit != nil {
				ar.Use(activityLimit.Middleware(userKey, h.Log))
			}
			ar.Get("/{id}/activity", h.ServeActivity)
		})
	})

	return r
}

// userKey buckets requests by signed-in user.
func userKey(r *http.Request) string {
	if _, uid, ok := authz.UserCtx(r); ok {
		return uid.Hex()
	}
	return ""
}
