package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.uber.org/zap"
)

// ErrGone means the push service no longer knows the endpoint (HTTP 404
// or 410). The subscription should be deactivated.
var ErrGone = errors.New("push endpoint gone")

// DefaultTTL is how long, in seconds, the push service keeps an
// undelivered message.
const DefaultTTL = 86400

// WebPushConfig carries the VAPID credentials for WebPush.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	// Subscriber is the contact for the push service, an email address
	// (with or without "mailto:") or an https URL.
	Subscriber string
	TTL        int
	HTTPClient *http.Client
}

// WebPush sends encrypted payloads with VAPID authentication.
type WebPush struct {
	cfg WebPushConfig
}

func NewWebPush(cfg WebPushConfig) (*WebPush, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, errors.New("webpush: VAPID public and private keys are required")
	}
	if cfg.Subscriber == "" {
		return nil, errors.New("webpush: subscriber contact is required")
	}
	// the library adds the scheme itself for anything that is not https
	cfg.Subscriber = strings.TrimPrefix(cfg.Subscriber, "mailto:")
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &WebPush{cfg: cfg}, nil
}

// PublicKey is the application server key browsers subscribe with.
func (w *WebPush) PublicKey() string { return w.cfg.PublicKey }

func (w *WebPush) Push(ctx context.Context, sub models.Subscription, payload []byte) error {
	opts := &webpush.Options{
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.PublicKey,
		VAPIDPrivateKey: w.cfg.PrivateKey,
		TTL:             w.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
	}
	if w.cfg.HTTPClient != nil {
		opts.HTTPClient = w.cfg.HTTPClient
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, opts)
	if err != nil {
		return apperr.Transport("push request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrGone
	case resp.StatusCode >= 400:
		return apperr.Transport(fmt.Sprintf("push service returned %d", resp.StatusCode), nil)
	}
	return nil
}

// LogPusher stands in for WebPush when no VAPID keys are configured.
// It logs each payload and reports success.
type LogPusher struct {
	Log *zap.Logger
}

func (p LogPusher) Push(_ context.Context, sub models.Subscription, payload []byte) error {
	p.Log.Debug("push (not sent, VAPID keys not configured)",
		zap.String("subscription_id", sub.ID.Hex()),
		zap.String("user_id", sub.UserID.Hex()),
		zap.ByteString("payload", payload))
	return nil
}
