// internal/app/store/subscriptions/subscriptionstore.go
package subscriptionstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrInvalidSubscription = apperr.Validation("Invalid subscription data")

// Store persists browser push subscriptions in push_subscriptions.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("push_subscriptions"), now: time.Now}
}

// Upsert saves the subscription for (userID, endpoint), refreshing its keys
// and re-activating it if it had been turned off.
func (s *Store) Upsert(ctx context.Context, userID primitive.ObjectID, endpoint string, keys models.SubscriptionKeys) (models.Subscription, error) {
	endpoint = strings.TrimSpace(endpoint)
	keys.P256dh = strings.TrimSpace(keys.P256dh)
	keys.Auth = strings.TrimSpace(keys.Auth)
	if endpoint == "" || keys.P256dh == "" || keys.Auth == "" {
		return models.Subscription{}, ErrInvalidSubscription
	}

	now := s.now().UTC()
	filter := bson.M{"user_id": userID, "endpoint": endpoint}
	update := bson.M{
		"$set": bson.M{
			"keys":       keys,
			"is_active":  true,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var sub models.Subscription
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&sub)
	if err != nil && wafflemongo.IsDup(err) {
		// two upserts raced on insert; the second now matches the first's document
		err = s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&sub)
	}
	if err != nil {
		return models.Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

// Deactivate turns off the user's subscription for endpoint. It reports
// whether a subscription matched.
func (s *Store) Deactivate(ctx context.Context, userID primitive.ObjectID, endpoint string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID, "endpoint": strings.TrimSpace(endpoint)},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": s.now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("deactivate subscription: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// DeactivateByID turns off a subscription the push service reported gone.
func (s *Store) DeactivateByID(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": s.now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("deactivate subscription %s: %w", id.Hex(), err)
	}
	return nil
}

// PruneInactive deletes subscriptions that were turned off before cutoff.
// Active subscriptions are never removed.
func (s *Store) PruneInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{
		"is_active":  false,
		"updated_at": bson.M{"$lt": cutoff.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("prune subscriptions: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Subscription, error) {
	return s.find(ctx, bson.M{"user_id": userID, "is_active": true})
}

// ListActiveByUsers returns the active subscriptions of every user in ids.
func (s *Store) ListActiveByUsers(ctx context.Context, ids []primitive.ObjectID) ([]models.Subscription, error) {
	if len(ids) == 0 {
		return []models.Subscription{}, nil
	}
	return s.find(ctx, bson.M{"user_id": bson.M{"$in": ids}, "is_active": true})
}

func (s *Store) ListAllActive(ctx context.Context) ([]models.Subscription, error) {
	return s.find(ctx, bson.M{"is_active": true})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Subscription, error) {
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.Subscription{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return out, nil
}
