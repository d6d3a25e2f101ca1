package userstore_test

import (
	"errors"
	"testing"

	userstore "github.com/dalemusser/gather/internal/app/store/users"
	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/app/system/indexes"
	"github.com/dalemusser/gather/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

func newStore(t *testing.T) (*userstore.Store, func()) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		cancel()
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return userstore.New(db).WithCost(bcrypt.MinCost), cancel
}

func TestStore_CreateAndAuthenticate(t *testing.T) {
	store, done := newStore(t)
	defer done()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := store.Create(ctx, "alice", " Alice@Example.com ", "secret123")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if u.PasswordHash == "secret123" || u.PasswordHash == "" {
		t.Error("password should be hashed")
	}

	got, err := store.Authenticate(ctx, "ALICE@example.com", "secret123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("Authenticate returned %v, want %v", got.ID, u.ID)
	}

	if _, err := store.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, userstore.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := store.Authenticate(ctx, "nobody@example.com", "secret123"); !errors.Is(err, userstore.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestStore_Create_Duplicates(t *testing.T) {
	store, done := newStore(t)
	defer done()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, "bob", "bob@example.com", "secret123"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create(ctx, "bobby", "BOB@example.com", "secret123"); !errors.Is(err, userstore.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
	if _, err := store.Create(ctx, "BOB", "other@example.com", "secret123"); !errors.Is(err, userstore.ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestStore_Create_Validation(t *testing.T) {
	store, done := newStore(t)
	defer done()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		name, username, email, password string
	}{
		{"short username", "ab", "a@b.com", "secret123"},
		{"bad username chars", "a b c", "a@b.com", "secret123"},
		{"bad email", "carol", "not-an-email", "secret123"},
		{"short password", "carol", "c@b.com", "123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tt.username, tt.email, tt.password); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestStore_Usernames(t *testing.T) {
	store, done := newStore(t)
	defer done()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, err := store.Create(ctx, "anna", "anna@example.com", "secret123")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b, err := store.Create(ctx, "ben", "ben@example.com", "secret123")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	names, err := store.UsernamesByIDs(ctx, []primitive.ObjectID{a.ID, b.ID, primitive.NewObjectID()})
	if err != nil {
		t.Fatalf("UsernamesByIDs failed: %v", err)
	}
	if len(names) != 2 || names[a.ID] != "anna" || names[b.ID] != "ben" {
		t.Errorf("unexpected names: %v", names)
	}

	name, err := store.Username(ctx, a.ID)
	if err != nil || name != "anna" {
		t.Errorf("Username: got %q, %v", name, err)
	}
	if _, err := store.Username(ctx, primitive.NewObjectID()); !errors.Is(err, userstore.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, primitive.NewObjectID()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
