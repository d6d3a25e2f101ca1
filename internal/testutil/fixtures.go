package testutil

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/gather/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user with the given username. The email is derived
// from the username; the password hash is a placeholder.
func (f *Fixtures) CreateUser(ctx context.Context, username string) models.User {
	f.t.Helper()

	u := models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		UsernameCI:   text.Fold(username),
		Email:        strings.ToLower(username) + "@test.com",
		PasswordHash: "not-a-real-hash",
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create user: %v", err)
	}
	return u
}

// CreateGroup inserts an active group whose creator is the first member.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, members ...primitive.ObjectID) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.Group{
		ID:         primitive.NewObjectID(),
		Name:       name,
		InviteCode: strings.ToUpper(primitive.NewObjectID().Hex()[16:24]),
		Members:    append([]primitive.ObjectID{}, members...),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(members) > 0 {
		g.CreatedBy = members[0]
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create group: %v", err)
	}
	return g
}

// CreateQuestion inserts an active question for the given day.
func (f *Fixtures) CreateQuestion(ctx context.Context, txt string, day time.Time) models.Question {
	f.t.Helper()

	q := models.Question{
		ID:        primitive.NewObjectID(),
		Text:      txt,
		Category:  models.CategoryGeneral,
		Date:      day,
		IsActive:  true,
		CreatedBy: "system",
		CreatedAt: time.Now().UTC(),
	}
	if _, err := f.db.Collection("questions").InsertOne(ctx, q); err != nil {
		f.t.Fatalf("failed to create question: %v", err)
	}
	return q
}

// CreateResponse inserts a response with an explicit creation time so that
// watermark-based tests control ordering precisely.
func (f *Fixtures) CreateResponse(ctx context.Context, groupID, questionID, userID primitive.ObjectID, txt string, createdAt time.Time) models.Response {
	f.t.Helper()

	r := models.Response{
		ID:         primitive.NewObjectID(),
		GroupID:    groupID,
		UserID:     userID,
		QuestionID: questionID,
		Text:       txt,
		Likes:      []models.Like{},
		Replies:    []models.Reply{},
		CreatedAt:  createdAt.UTC(),
		UpdatedAt:  createdAt.UTC(),
	}
	if _, err := f.db.Collection("responses").InsertOne(ctx, r); err != nil {
		f.t.Fatalf("failed to create response: %v", err)
	}
	return r
}

// CreateSubscription inserts a push subscription for a user.
func (f *Fixtures) CreateSubscription(ctx context.Context, userID primitive.ObjectID, endpoint string, active bool) models.Subscription {
	f.t.Helper()

	now := time.Now().UTC()
	s := models.Subscription{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Endpoint:  endpoint,
		Keys:      models.SubscriptionKeys{P256dh: "p256dh-key", Auth: "auth-key"},
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("push_subscriptions").InsertOne(ctx, s); err != nil {
		f.t.Fatalf("failed to create subscription: %v", err)
	}
	return s
}
