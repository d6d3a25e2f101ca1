package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/gather/internal/app/system/validators"
	"github.com/dalemusser/gather/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesCollections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	have := make(map[string]bool)
	for _, n := range names {
		have[n] = true
	}
	for _, want := range []string{"users", "groups", "questions", "responses", "push_subscriptions"} {
		if !have[want] {
			t.Errorf("expected collection %q to exist", want)
		}
	}
}

func TestValidators(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	now := time.Now().UTC()
	uid := primitive.NewObjectID()

	tests := []struct {
		name    string
		coll    string
		doc     bson.M
		wantErr bool
	}{
		{
			name: "valid user",
			coll: "users",
			doc: bson.M{"username": "alice", "username_ci": "alice", "email": "alice@test.com",
				"password_hash": "hash", "created_at": now},
		},
		{
			name:    "user missing password hash",
			coll:    "users",
			doc:     bson.M{"username": "bob", "username_ci": "bob", "email": "bob@test.com", "created_at": now},
			wantErr: true,
		},
		{
			name: "valid group",
			coll: "groups",
			doc: bson.M{"name": "Family", "description": "", "invite_code": "AB12CD34", "created_by": uid,
				"members": bson.A{uid}, "is_active": true, "created_at": now, "updated_at": now},
		},
		{
			name: "group with lower-case invite code",
			coll: "groups",
			doc: bson.M{"name": "Family", "invite_code": "ab12cd34", "created_by": uid,
				"members": bson.A{uid}, "is_active": true},
			wantErr: true,
		},
		{
			name: "group with blank name",
			coll: "groups",
			doc: bson.M{"name": "   ", "invite_code": "AB12CD35", "created_by": uid,
				"members": bson.A{uid}, "is_active": true},
			wantErr: true,
		},
		{
			name: "valid question",
			coll: "questions",
			doc: bson.M{"text": "What made you smile?", "category": "general", "date": now,
				"is_active": true, "created_by": "system", "created_at": now},
		},
		{
			name:    "question with unknown category",
			coll:    "questions",
			doc:     bson.M{"text": "Hmm?", "category": "work", "date": now, "is_active": true},
			wantErr: true,
		},
		{
			name: "valid response",
			coll: "responses",
			doc: bson.M{"group_id": uid, "user_id": uid, "question_id": uid, "text": "hi",
				"likes":   bson.A{bson.M{"user_id": uid, "created_at": now}},
				"replies": bson.A{bson.M{"_id": primitive.NewObjectID(), "user_id": uid, "text": "yo", "created_at": now}},
				"created_at": now, "updated_at": now},
		},
		{
			name: "response with empty reply",
			coll: "responses",
			doc: bson.M{"group_id": uid, "user_id": uid, "question_id": uid,
				"likes":   bson.A{},
				"replies": bson.A{bson.M{"_id": primitive.NewObjectID(), "user_id": uid, "text": "", "created_at": now}},
				"created_at": now},
			wantErr: true,
		},
		{
			name: "valid subscription",
			coll: "push_subscriptions",
			doc: bson.M{"user_id": uid, "endpoint": "https://push.example.com/1",
				"keys": bson.M{"p256dh": "k", "auth": "a"}, "is_active": true},
		},
		{
			name: "subscription missing auth key",
			coll: "push_subscriptions",
			doc: bson.M{"user_id": uid, "endpoint": "https://push.example.com/2",
				"keys": bson.M{"p256dh": "k"}, "is_active": true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Collection(tt.coll).InsertOne(ctx, tt.doc)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("insert failed: %v", err)
			}
		})
	}
}
