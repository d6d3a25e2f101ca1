// Package activitycheck answers "has anything happened in this group since
// my last look?" for clients that poll instead of holding a live connection.
package activitycheck

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultWindow is how far back an unspecified watermark reaches.
const DefaultWindow = 60 * time.Second

const (
	msgUpdated     = "New likes and replies in your group"
	fallbackAuthor = "Someone"
)

// ResponseSource is the slice of the response store the aggregator reads.
type ResponseSource interface {
	CountCreatedSince(ctx context.Context, groupID primitive.ObjectID, since time.Time) (int64, error)
	FirstCreatedSince(ctx context.Context, groupID primitive.ObjectID, since time.Time) (models.Response, bool, error)
	CountUpdatedSince(ctx context.Context, groupID primitive.ObjectID, since time.Time) (int64, error)
}

// UserNames resolves a user id to a display name.
type UserNames interface {
	Username(ctx context.Context, id primitive.ObjectID) (string, error)
}

// Result is the activity summary returned to polling clients.
// NewResponses and UpdatedResponses may overlap: a response created after
// the watermark that was also liked counts in both.
type Result struct {
	HasNewActivity   bool   `json:"hasNewActivity"`
	Message          string `json:"message"`
	NewResponses     int64  `json:"newResponses"`
	UpdatedResponses int64  `json:"updatedResponses"`
}

type Aggregator struct {
	responses ResponseSource
	users     UserNames
	window    time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// New builds an aggregator. A non-positive window means DefaultWindow.
func New(responses ResponseSource, users UserNames, window time.Duration, logger *zap.Logger) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{
		responses: responses,
		users:     users,
		window:    window,
		now:       time.Now,
		log:       logger,
	}
}

// WithClock returns a copy that reads the time from now.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	cp := *a
	cp.now = now
	return &cp
}

// Check summarises group activity strictly after since. A zero since
// means now minus the window. Group membership is the caller's concern.
func (a *Aggregator) Check(ctx context.Context, groupID primitive.ObjectID, since time.Time) (Result, error) {
	if since.IsZero() {
		since = a.now().Add(-a.window)
	}
	since = since.UTC()

	created, err := a.responses.CountCreatedSince(ctx, groupID, since)
	if err != nil {
		return Result{}, err
	}
	updated, err := a.responses.CountUpdatedSince(ctx, groupID, since)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		HasNewActivity:   created > 0 || updated > 0,
		NewResponses:     created,
		UpdatedResponses: updated,
	}

	switch {
	case created > 0:
		res.Message = a.authorName(ctx, groupID, since) + " shared a new response"
	case updated > 0:
		res.Message = msgUpdated
	}
	return res, nil
}

// authorName names the author of the earliest new response. Lookup
// failures degrade to a generic name rather than failing the poll.
func (a *Aggregator) authorName(ctx context.Context, groupID primitive.ObjectID, since time.Time) string {
	first, found, err := a.responses.FirstCreatedSince(ctx, groupID, since)
	if err != nil || !found {
		if err != nil {
			a.log.Warn("activity: first new response lookup failed",
				zap.String("group_id", groupID.Hex()),
				zap.Error(err))
		}
		return fallbackAuthor
	}
	name, err := a.users.Username(ctx, first.UserID)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			a.log.Debug("activity: author lookup failed",
				zap.String("user_id", first.UserID.Hex()),
				zap.Error(err))
		}
		return fallbackAuthor
	}
	return name
}

// ParseSince reads a client watermark: RFC 3339 (fractional seconds
// optional) or Unix milliseconds. An empty string yields the zero time.
func ParseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, apperr.Validation(fmt.Sprintf("Invalid since timestamp %q", raw))
	}
	return t.UTC(), nil
}
