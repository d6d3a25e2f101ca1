package auditlog_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/gather/internal/app/store/audit"
	"github.com/dalemusser/gather/internal/app/system/auditlog"
	"github.com/dalemusser/gather/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()
	req := httptest.NewRequest("GET", "/", nil)

	// no-ops, must not panic
	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.LoginSuccess(ctx, req, primitive.NewObjectID(), "a@test.com")
	logger.Logout(ctx, req, primitive.NewObjectID())
	logger.GroupJoined(ctx, req, primitive.NewObjectID(), primitive.NewObjectID())
}

func TestLogger_Destinations(t *testing.T) {
	tests := []struct {
		setting string
		wantDB  bool
		wantZap bool
	}{
		{auditlog.All, true, true},
		{auditlog.DB, true, false},
		{auditlog.Log, false, true},
		{auditlog.Off, false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run("setting="+tt.setting, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			store := audit.New(db)
			core, logs := observer.New(zap.InfoLevel)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			logger := auditlog.New(store, zap.New(core), auditlog.Config{Auth: tt.setting, Group: tt.setting})
			userID := primitive.NewObjectID()
			req := httptest.NewRequest("POST", "/api/auth/login", nil)
			req.RemoteAddr = "10.0.0.7:5555"

			logger.LoginSuccess(ctx, req, userID, "a@test.com")

			events, err := store.Query(ctx, audit.QueryFilter{UserID: &userID})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if got := len(events) == 1; got != tt.wantDB {
				t.Errorf("stored: got %d events, wantDB=%v", len(events), tt.wantDB)
			}
			if tt.wantDB && events[0].IP != "10.0.0.7" {
				t.Errorf("IP: got %q", events[0].IP)
			}
			if got := logs.FilterMessage("audit event").Len() == 1; got != tt.wantZap {
				t.Errorf("zap: got %d entries, wantZap=%v", logs.Len(), tt.wantZap)
			}
		})
	}
}

func TestLogger_GroupEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.Off, Group: auditlog.DB})
	req := httptest.NewRequest("POST", "/api/groups", nil)
	userID, groupID := primitive.NewObjectID(), primitive.NewObjectID()

	logger.GroupCreated(ctx, req, userID, groupID, "Family")
	logger.GroupJoined(ctx, req, primitive.NewObjectID(), groupID)
	logger.GroupLeft(ctx, req, userID, groupID)
	logger.LoginFailed(ctx, req, "nobody@test.com") // auth is off

	events, err := store.Query(ctx, audit.QueryFilter{Category: audit.CategoryGroup})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 group events, got %d", len(events))
	}
	for _, e := range events {
		if e.GroupID == nil || *e.GroupID != groupID {
			t.Errorf("event %s: group id %v", e.EventType, e.GroupID)
		}
	}
	all, err := store.Query(ctx, audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected auth events to be skipped, got %d events", len(all))
	}
}
