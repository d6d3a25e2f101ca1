// Package notify delivers web push notifications to users, groups and all
// subscribers.
//
// A fanout sends to every resolved subscription concurrently and waits for
// all of them to settle. Individual failures are logged and counted, never
// returned: one dead endpoint must not stop the others.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dalemusser/gather/internal/app/system/metrics"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/gather/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Report summarises one fanout.
type Report struct {
	Attempted int
	Delivered int
	Failed    int
}

// SubscriptionSource resolves recipients to their active subscriptions.
type SubscriptionSource interface {
	ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Subscription, error)
	ListActiveByUsers(ctx context.Context, ids []primitive.ObjectID) ([]models.Subscription, error)
	ListAllActive(ctx context.Context) ([]models.Subscription, error)
}

// Deactivator is implemented by subscription sources that can retire an
// endpoint the push service no longer accepts.
type Deactivator interface {
	DeactivateByID(ctx context.Context, id primitive.ObjectID) error
}

// GroupSource resolves a group to its member ids.
type GroupSource interface {
	MemberIDs(ctx context.Context, groupID primitive.ObjectID) ([]primitive.ObjectID, error)
}

// Pusher sends one encoded payload to one subscription.
type Pusher interface {
	Push(ctx context.Context, sub models.Subscription, payload []byte) error
}

type Notifier struct {
	subs    SubscriptionSource
	groups  GroupSource
	pusher  Pusher
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New builds a Notifier. m may be nil.
func New(subs SubscriptionSource, groups GroupSource, pusher Pusher, logger *zap.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		subs:    subs,
		groups:  groups,
		pusher:  pusher,
		log:     logger,
		metrics: m,
	}
}

// NotifyUser sends p to every active subscription of userID.
func (n *Notifier) NotifyUser(ctx context.Context, userID primitive.ObjectID, p Payload) Report {
	subs, err := n.subs.ListActiveByUser(ctx, userID)
	if err != nil {
		n.log.Error("notify user: subscription lookup failed",
			zap.String("user_id", userID.Hex()),
			zap.Error(err))
		return Report{}
	}
	return n.fanout(ctx, subs, p, zap.String("user_id", userID.Hex()))
}

// NotifyGroup sends p to the active subscriptions of every member of
// groupID except excludeUserID. A zero excludeUserID excludes nobody.
func (n *Notifier) NotifyGroup(ctx context.Context, groupID primitive.ObjectID, p Payload, excludeUserID primitive.ObjectID) Report {
	members, err := n.groups.MemberIDs(ctx, groupID)
	if err != nil {
		n.log.Error("notify group: group lookup failed",
			zap.String("group_id", groupID.Hex()),
			zap.Error(err))
		return Report{}
	}

	recipients := make([]primitive.ObjectID, 0, len(members))
	for _, m := range members {
		if !excludeUserID.IsZero() && m == excludeUserID {
			continue
		}
		recipients = append(recipients, m)
	}
	if len(recipients) == 0 {
		return Report{}
	}

	subs, err := n.subs.ListActiveByUsers(ctx, recipients)
	if err != nil {
		n.log.Error("notify group: subscription lookup failed",
			zap.String("group_id", groupID.Hex()),
			zap.Error(err))
		return Report{}
	}
	return n.fanout(ctx, subs, p, zap.String("group_id", groupID.Hex()))
}

// NotifySubscribers sends p to every active subscription.
func (n *Notifier) NotifySubscribers(ctx context.Context, p Payload) Report {
	subs, err := n.subs.ListAllActive(ctx)
	if err != nil {
		n.log.Error("notify subscribers: subscription lookup failed", zap.Error(err))
		return Report{}
	}
	return n.fanout(ctx, subs, p, zap.String("target", "all"))
}

func (n *Notifier) fanout(ctx context.Context, subs []models.Subscription, p Payload, target zap.Field) Report {
	if len(subs) == 0 {
		return Report{}
	}
	body, err := json.Marshal(p)
	if err != nil {
		n.log.Error("notify: encode payload", zap.Error(err))
		return Report{}
	}

	batch := uuid.NewString()
	var delivered, failed atomic.Int64
	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s models.Subscription) {
			defer wg.Done()
			if n.dispatch(ctx, s, body, batch) {
				delivered.Add(1)
			} else {
				failed.Add(1)
			}
		}(s)
	}
	wg.Wait()

	r := Report{
		Attempted: len(subs),
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
	}
	n.log.Info("notify: fanout settled",
		target,
		zap.String("batch", batch),
		zap.Int("attempted", r.Attempted),
		zap.Int("delivered", r.Delivered),
		zap.Int("failed", r.Failed))
	return r
}

// dispatch sends to one subscription and reports success. A panicking
// transport counts as a failure for this subscription only.
func (n *Notifier) dispatch(ctx context.Context, s models.Subscription, body []byte, batch string) (ok bool) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			n.log.Error("notify: push panicked",
				zap.String("batch", batch),
				zap.String("subscription_id", s.ID.Hex()),
				zap.Any("panic", rec))
			n.metrics.RecordPush(metrics.PushFailed, time.Since(start))
			ok = false
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, timeouts.Push())
	err := n.pusher.Push(pctx, s, body)
	cancel()

	switch {
	case err == nil:
		n.metrics.RecordPush(metrics.PushDelivered, time.Since(start))
		return true
	case errors.Is(err, ErrGone):
		n.metrics.RecordPush(metrics.PushGone, time.Since(start))
		n.log.Info("notify: endpoint gone, deactivating",
			zap.String("batch", batch),
			zap.String("subscription_id", s.ID.Hex()))
		n.retire(ctx, s)
		return false
	default:
		n.metrics.RecordPush(metrics.PushFailed, time.Since(start))
		n.log.Warn("notify: push failed",
			zap.String("batch", batch),
			zap.String("subscription_id", s.ID.Hex()),
			zap.String("user_id", s.UserID.Hex()),
			zap.Error(err))
		return false
	}
}

func (n *Notifier) retire(ctx context.Context, s models.Subscription) {
	d, ok := n.subs.(Deactivator)
	if !ok {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	if err := d.DeactivateByID(dctx, s.ID); err != nil {
		n.log.Warn("notify: deactivate gone subscription failed",
			zap.String("subscription_id", s.ID.Hex()),
			zap.Error(err))
	}
}

func (r Report) String() string {
	return fmt.Sprintf("attempted=%d delivered=%d failed=%d", r.Attempted, r.Delivered, r.Failed)
}
