package responses_test

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/gather/internal/app/features/responses"
	"github.com/dalemusser/gather/internal/app/features/shared/views"
	groupstore "github.com/dalemusser/gather/internal/app/store/groups"
	questionstore "github.com/dalemusser/gather/internal/app/store/questions"
	responsestore "github.com/dalemusser/gather/internal/app/store/responses"
	subscriptionstore "github.com/dalemusser/gather/internal/app/store/subscriptions"
	userstore "github.com/dalemusser/gather/internal/app/store/users"
	"github.com/dalemusser/gather/internal/app/system/indexes"
	"github.com/dalemusser/gather/internal/app/system/notify"
	"github.com/dalemusser/gather/internal/domain/models"
	"github.com/dalemusser/gather/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type recordingPusher struct {
	mu   sync.Mutex
	sent []string
}

func (p *recordingPusher) Push(_ context.Context, sub models.Subscription, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sub.Endpoint)
	return nil
}

// drain waits for background notifications and returns what was sent
// since the last drain.
func (p *recordingPusher) drain(t *testing.T, ev *notify.Events) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ev.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.sent
	p.sent = nil
	sort.Strings(out)
	return out
}

type env struct {
	h      *responses.Handler
	events *notify.Events
	pusher *recordingPusher
	group  models.Group
	q      models.Question
	alice  testutil.TestUser
	bob    testutil.TestUser
	carol  testutil.TestUser
}

func setup(t *testing.T) env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	fx := testutil.NewFixtures(t, db)
	a := fx.CreateUser(ctx, "alice")
	b := fx.CreateUser(ctx, "bob")
	c := fx.CreateUser(ctx, "carol")
	grp := fx.CreateGroup(ctx, "Family", a.ID, b.ID)
	q := fx.CreateQuestion(ctx, "What made you smile?", questionstore.DayStart(time.Now(), time.UTC))
	fx.CreateSubscription(ctx, a.ID, "https://push.test/alice", true)
	fx.CreateSubscription(ctx, b.ID, "https://push.test/bob", true)
	fx.CreateSubscription(ctx, c.ID, "https://push.test/carol", true)

	groups := groupstore.New(db)
	pusher := &recordingPusher{}
	n := notify.New(subscriptionstore.New(db), groups, pusher, zap.NewNop(), nil)
	events := notify.NewEvents(n, zap.NewNop())

	h := responses.NewHandler(responsestore.New(db), questionstore.New(db, time.UTC), groups,
		userstore.New(db), events, zap.NewNop())
	return env{
		h:      h,
		events: events,
		pusher: pusher,
		group:  grp,
		q:      q,
		alice:  testutil.UserFor(a.ID, "alice"),
		bob:    testutil.UserFor(b.ID, "bob"),
		carol:  testutil.UserFor(c.ID, "carol"),
	}
}

func (e env) submit(as testutil.TestUser, groupID, questionID, text string) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	e.h.HandleSubmit(rec, testutil.NewJSONRequest("POST", "/api/responses", map[string]string{
		"groupId": groupID, "questionId": questionID, "text": text,
	}, as))
	return rec
}

type envelope struct {
	Message  string         `json:"message"`
	Response views.Response `json:"response"`
}

func (e env) mustSubmit(t *testing.T, as testutil.TestUser) views.Response {
	t.Helper()
	rec := e.submit(as, e.group.ID.Hex(), e.q.ID.Hex(), "A <b>good</b> day")
	rec.AssertStatus(t, http.StatusCreated)
	var out envelope
	rec.DecodeJSON(t, &out)
	return out.Response
}

func TestHandleSubmit(t *testing.T) {
	e := setup(t)
	gid, qid := e.group.ID.Hex(), e.q.ID.Hex()

	resp := e.mustSubmit(t, e.alice)
	if resp.Text != "A good day" {
		t.Errorf("text: got %q, want markup stripped", resp.Text)
	}
	if resp.User.Username != "alice" || resp.LikeCount != 0 || resp.ReplyCount != 0 {
		t.Errorf("unexpected response view %+v", resp)
	}

	got := e.pusher.drain(t, e.events)
	if len(got) != 1 || got[0] != "https://push.test/bob" {
		t.Errorf("expected only bob to be notified, got %v", got)
	}

	e.submit(e.alice, gid, qid, "again").AssertStatus(t, http.StatusConflict)
	e.submit(e.alice, "", qid, "x").AssertStatus(t, http.StatusBadRequest)
	e.submit(e.alice, gid, "", "x").AssertStatus(t, http.StatusBadRequest)
	e.submit(e.bob, gid, qid, "   ").AssertStatus(t, http.StatusBadRequest)
	e.submit(e.carol, gid, qid, "let me in").AssertStatus(t, http.StatusForbidden)
	e.submit(e.bob, gid, primitive.NewObjectID().Hex(), "x").AssertStatus(t, http.StatusNotFound)
	e.submit(e.bob, primitive.NewObjectID().Hex(), qid, "x").AssertStatus(t, http.StatusForbidden)
}

func TestServeGroupResponses(t *testing.T) {
	e := setup(t)
	first := e.mustSubmit(t, e.alice)
	e.mustSubmit(t, e.bob)
	e.pusher.drain(t, e.events)

	list := func(as testutil.TestUser, groupID, query string) *testutil.ResponseRecorder {
		req := testutil.NewAuthenticatedRequest("GET", "/api/responses/group/"+groupID+query, as)
		req = testutil.WithChiURLParam(req, "groupID", groupID)
		rec := testutil.NewRecorder()
		e.h.ServeGroupResponses(rec, req)
		return rec
	}

	var out struct {
		Question  models.Question  `json:"question"`
		Responses []views.Response `json:"responses"`
	}
	rec := list(e.bob, e.group.ID.Hex(), "")
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &out)
	if out.Question.ID != e.q.ID {
		t.Errorf("expected today's question, got %s", out.Question.ID.Hex())
	}
	if len(out.Responses) != 2 || out.Responses[0].ID != first.ID {
		t.Fatalf("expected 2 responses oldest first, got %+v", out.Responses)
	}

	rec = list(e.bob, e.group.ID.Hex(), "?questionId="+e.q.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)

	list(e.bob, e.group.ID.Hex(), "?questionId="+primitive.NewObjectID().Hex()).AssertStatus(t, http.StatusNotFound)
	list(e.carol, e.group.ID.Hex(), "").AssertStatus(t, http.StatusForbidden)
	list(e.bob, primitive.NewObjectID().Hex(), "").AssertStatus(t, http.StatusForbidden)
	list(e.bob, "not-an-id", "").AssertStatus(t, http.StatusForbidden)
}

func TestHandleToggleLike(t *testing.T) {
	e := setup(t)
	resp := e.mustSubmit(t, e.alice)
	e.pusher.drain(t, e.events)

	like := func(as testutil.TestUser, id string) *testutil.ResponseRecorder {
		req := testutil.NewAuthenticatedRequest("PUT", "/api/responses/"+id+"/like", as)
		req = testutil.WithChiURLParam(req, "id", id)
		rec := testutil.NewRecorder()
		e.h.HandleToggleLike(rec, req)
		return rec
	}

	var out struct {
		Message   string `json:"message"`
		IsLiked   bool   `json:"isLiked"`
		LikeCount int    `json:"likeCount"`
	}
	rec := like(e.bob, resp.ID)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &out)
	if !out.IsLiked || out.LikeCount != 1 {
		t.Errorf("after like: %+v", out)
	}
	if got := e.pusher.drain(t, e.events); len(got) != 1 || got[0] != "https://push.test/alice" {
		t.Errorf("expected the owner to be notified, got %v", got)
	}

	rec = like(e.bob, resp.ID)
	rec.DecodeJSON(t, &out)
	if out.IsLiked || out.LikeCount != 0 {
		t.Errorf("after unlike: %+v", out)
	}
	if got := e.pusher.drain(t, e.events); len(got) != 0 {
		t.Errorf("unlike should not notify, got %v", got)
	}

	// liking your own response is silent
	like(e.alice, resp.ID).AssertStatus(t, http.StatusOK)
	if got := e.pusher.drain(t, e.events); len(got) != 0 {
		t.Errorf("self-like should not notify, got %v", got)
	}

	like(e.carol, resp.ID).AssertStatus(t, http.StatusForbidden)
	like(e.bob, primitive.NewObjectID().Hex()).AssertStatus(t, http.StatusNotFound)
}

func TestHandleReply(t *testing.T) {
	e := setup(t)
	resp := e.mustSubmit(t, e.alice)
	e.pusher.drain(t, e.events)

	reply := func(as testutil.TestUser, id, text string) *testutil.ResponseRecorder {
		req := testutil.NewJSONRequest("POST", "/api/responses/"+id+"/reply", map[string]string{"text": text}, as)
		req = testutil.WithChiURLParam(req, "id", id)
		rec := testutil.NewRecorder()
		e.h.HandleReply(rec, req)
		return rec
	}

	rec := reply(e.bob, resp.ID, "  same here  ")
	rec.AssertStatus(t, http.StatusCreated)
	var out struct {
		Reply views.Reply `json:"reply"`
	}
	rec.DecodeJSON(t, &out)
	if out.Reply.Text != "same here" || out.Reply.User.Username != "bob" {
		t.Errorf("unexpected reply %+v", out.Reply)
	}
	if got := e.pusher.drain(t, e.events); len(got) != 1 || got[0] != "https://push.test/alice" {
		t.Errorf("expected the owner to be notified, got %v", got)
	}

	reply(e.bob, resp.ID, "").AssertStatus(t, http.StatusBadRequest)
	reply(e.carol, resp.ID, "hi").AssertStatus(t, http.StatusForbidden)
	reply(e.bob, "bogus", "hi").AssertStatus(t, http.StatusNotFound)
}
