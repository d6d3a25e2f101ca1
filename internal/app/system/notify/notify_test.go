package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/app/system/metrics"
	"github.com/dalemusser/gather/internal/app/system/notify"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeSubs struct {
	byUser      map[primitive.ObjectID][]models.Subscription
	err         error
	mu          sync.Mutex
	deactivated []primitive.ObjectID
}

func (f *fakeSubs) ListActiveByUser(_ context.Context, id primitive.ObjectID) ([]models.Subscription, error) {
	return f.ListActiveByUsers(context.Background(), []primitive.ObjectID{id})
}

func (f *fakeSubs) ListActiveByUsers(_ context.Context, ids []primitive.ObjectID) ([]models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Subscription
	for _, id := range ids {
		out = append(out, f.byUser[id]...)
	}
	return out, nil
}

func (f *fakeSubs) ListAllActive(_ context.Context) ([]models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Subscription
	for _, s := range f.byUser {
		out = append(out, s...)
	}
	return out, nil
}

func (f *fakeSubs) DeactivateByID(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, id)
	return nil
}

type fakeGroups map[primitive.ObjectID]models.Group

func (f fakeGroups) MemberIDs(_ context.Context, id primitive.ObjectID) ([]primitive.ObjectID, error) {
	g, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("Group not found")
	}
	return g.Members, nil
}

// recordingPusher records every push and fails endpoints listed in fail.
type recordingPusher struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]error
	panic map[string]bool
	last  []byte
}

func (p *recordingPusher) Push(_ context.Context, sub models.Subscription, payload []byte) error {
	p.mu.Lock()
	p.sent = append(p.sent, sub.Endpoint)
	p.last = payload
	p.mu.Unlock()
	if p.panic[sub.Endpoint] {
		panic("transport exploded")
	}
	return p.fail[sub.Endpoint]
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func sub(user primitive.ObjectID, endpoint string) models.Subscription {
	return models.Subscription{ID: primitive.NewObjectID(), UserID: user, Endpoint: endpoint, IsActive: true}
}

func TestNotifyGroup_ExcludesAuthorAndToleratesFailure(t *testing.T) {
	a, b, c := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	g := models.Group{ID: primitive.NewObjectID(), Members: []primitive.ObjectID{a, b, c}}

	subs := &fakeSubs{byUser: map[primitive.ObjectID][]models.Subscription{
		a: {sub(a, "a-phone")},
		b: {sub(b, "b-phone"), sub(b, "b-laptop")},
	}}
	pusher := &recordingPusher{fail: map[string]error{"b-phone": apperr.Transport("push service returned 500", nil)}}
	n := notify.New(subs, fakeGroups{g.ID: g}, pusher, zap.NewNop(), metrics.New())

	r := n.NotifyGroup(context.Background(), g.ID, notify.Payload{Title: "t"}, a)

	if r.Attempted != 2 || r.Delivered != 1 || r.Failed != 1 {
		t.Errorf("unexpected report %+v", r)
	}
	for _, e := range pusher.sent {
		if e == "a-phone" {
			t.Error("author should be excluded")
		}
	}
}

func TestNotifyGroup_ZeroExcludeNotifiesEveryone(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	g := models.Group{ID: primitive.NewObjectID(), Members: []primitive.ObjectID{a, b}}
	subs := &fakeSubs{byUser: map[primitive.ObjectID][]models.Subscription{
		a: {sub(a, "a")},
		b: {sub(b, "b")},
	}}
	pusher := &recordingPusher{}
	n := notify.New(subs, fakeGroups{g.ID: g}, pusher, zap.NewNop(), nil)

	r := n.NotifyGroup(context.Background(), g.ID, notify.Payload{Title: "t"}, primitive.NilObjectID)
	if r.Attempted != 2 || r.Delivered != 2 {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestNotifyGroup_UnknownGroupIsEmptyReport(t *testing.T) {
	pusher := &recordingPusher{}
	n := notify.New(&fakeSubs{}, fakeGroups{}, pusher, zap.NewNop(), nil)

	r := n.NotifyGroup(context.Background(), primitive.NewObjectID(), notify.Payload{}, primitive.NilObjectID)
	if r != (notify.Report{}) || pusher.count() != 0 {
		t.Errorf("expected nothing sent, got %+v", r)
	}
}

func TestNotifyUser_EncodesPayloadOnce(t *testing.T) {
	u := primitive.NewObjectID()
	subs := &fakeSubs{byUser: map[primitive.ObjectID][]models.Subscription{u: {sub(u, "x")}}}
	pusher := &recordingPusher{}
	n := notify.New(subs, fakeGroups{}, pusher, zap.NewNop(), nil)

	p := notify.Payload{Title: "Response Liked", Body: "bob liked your response", Icon: notify.Icon, Badge: notify.Badge, URL: "/"}
	if r := n.NotifyUser(context.Background(), u, p); r.Delivered != 1 {
		t.Fatalf("unexpected report %+v", r)
	}

	var got notify.Payload
	if err := json.Unmarshal(pusher.last, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got != p {
		t.Errorf("payload: got %+v, want %+v", got, p)
	}
}

func TestNotifyUser_LookupFailureIsEmptyReport(t *testing.T) {
	n := notify.New(&fakeSubs{err: errors.New("db down")}, fakeGroups{}, &recordingPusher{}, zap.NewNop(), nil)
	if r := n.NotifyUser(context.Background(), primitive.NewObjectID(), notify.Payload{}); r != (notify.Report{}) {
		t.Errorf("expected empty report, got %+v", r)
	}
}

func TestNotifySubscribers_GoneEndpointsAreDeactivated(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	gone := sub(b, "gone")
	subs := &fakeSubs{byUser: map[primitive.ObjectID][]models.Subscription{
		a: {sub(a, "ok")},
		b: {gone},
	}}
	pusher := &recordingPusher{fail: map[string]error{"gone": notify.ErrGone}}
	n := notify.New(subs, fakeGroups{}, pusher, zap.NewNop(), nil)

	r := n.NotifySubscribers(context.Background(), notify.Payload{Title: "q"})
	if r.Attempted != 2 || r.Delivered != 1 || r.Failed != 1 {
		t.Errorf("unexpected report %+v", r)
	}
	if len(subs.deactivated) != 1 || subs.deactivated[0] != gone.ID {
		t.Errorf("expected gone subscription to be deactivated, got %v", subs.deactivated)
	}
}

func TestFanout_PanicIsolatedToOneDispatch(t *testing.T) {
	u := primitive.NewObjectID()
	subs := &fakeSubs{byUser: map[primitive.ObjectID][]models.Subscription{
		u: {sub(u, "boom"), sub(u, "fine")},
	}}
	pusher := &recordingPusher{panic: map[string]bool{"boom": true}}
	n := notify.New(subs, fakeGroups{}, pusher, zap.NewNop(), nil)

	r := n.NotifyUser(context.Background(), u, notify.Payload{})
	if r.Attempted != 2 || r.Delivered != 1 || r.Failed != 1 {
		t.Errorf("unexpected report %+v", r)
	}
}
