// internal/domain/models/subscription.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription is a browser push subscription. A user may hold several
// (one per device); exactly one document exists per (user_id, endpoint).
type Subscription struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	UserID   primitive.ObjectID `bson:"user_id" json:"userId"`
	Endpoint string             `bson:"endpoint" json:"endpoint"`
	Keys     SubscriptionKeys   `bson:"keys" json:"keys"`
	IsActive bool               `bson:"is_active" json:"isActive"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// SubscriptionKeys are the client keys needed to encrypt a push payload.
type SubscriptionKeys struct {
	P256dh string `bson:"p256dh" json:"p256dh"`
	Auth   string `bson:"auth" json:"auth"`
}
