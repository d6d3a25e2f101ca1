// internal/app/features/notifications/handler.go
package notifications

import (
	"net/http"
	"strings"

	subscriptionstore "github.com/dalemusser/gather/internal/app/store/subscriptions"
	"github.com/dalemusser/gather/internal/app/system/authz"
	"github.com/dalemusser/gather/internal/app/system/httpjson"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.uber.org/zap"
)

type Handler struct {
	Subs      *subscriptionstore.Store
	PublicKey string // VAPID application server key; empty when push is off
	Log       *zap.Logger
}

func NewHandler(subs *subscriptionstore.Store, publicKey string, logger *zap.Logger) *Handler {
	return &Handler{Subs: subs, PublicKey: publicKey, Log: logger}
}

type subscribeRequest struct {
	Endpoint string                  `json:"endpoint"`
	Keys     models.SubscriptionKeys `json:"keys"`
}

// HandleSubscribe handles POST /api/notifications/subscribe. The body is
// the browser's PushSubscription JSON.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)

	var req subscribeRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "subscribe", err, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "subscribe")
	defer cancel()

	sub, err := h.Subs.Upsert(ctx, uid, req.Endpoint, req.Keys)
	if err != nil {
		httpjson.FromError(w, h.Log, "subscribe", err, "Failed to save subscription")
		return
	}
	h.Log.Info("push subscription saved",
		zap.String("user_id", uid.Hex()),
		zap.String("subscription_id", sub.ID.Hex()))
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "Subscription saved successfully"})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// HandleUnsubscribe handles DELETE /api/notifications/unsubscribe. An
// unknown endpoint is not an error.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)

	var req unsubscribeRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "unsubscribe", err, "")
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		httpjson.Error(w, http.StatusBadRequest, "Endpoint is required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "unsubscribe")
	defer cancel()

	matched, err := h.Subs.Deactivate(ctx, uid, req.Endpoint)
	if err != nil {
		httpjson.FromError(w, h.Log, "unsubscribe", err, "Failed to unsubscribe")
		return
	}
	if !matched {
		h.Log.Debug("unsubscribe: no matching subscription", zap.String("user_id", uid.Hex()))
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "Unsubscribed successfully"})
}

// ServePublicKey handles GET /api/notifications/vapid-public-key.
func (h *Handler) ServePublicKey(w http.ResponseWriter, r *http.Request) {
	if h.PublicKey == "" {
		httpjson.Error(w, http.StatusServiceUnavailable, "Push notifications are not configured")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"publicKey": h.PublicKey})
}
