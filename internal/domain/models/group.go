// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InviteCodeLength is the fixed length of a group invite code.
const InviteCodeLength = 8

// Group is a membership-bounded circle of users who answer the daily
// question together.
//
// NOTE:
//   - Members are embedded on the group document; the group owns its
//     member list and is the only place membership is recorded.
//   - InviteCode is unique across all groups (uniq_groups_invite_code).
type Group struct {
	ID          primitive.ObjectID   `bson:"_id" json:"id"`
	Name        string               `bson:"name" json:"name"`
	Description string               `bson:"description" json:"description"`
	InviteCode  string               `bson:"invite_code" json:"inviteCode"`
	CreatedBy   primitive.ObjectID   `bson:"created_by" json:"createdBy"`
	Members     []primitive.ObjectID `bson:"members" json:"members"`
	IsActive    bool                 `bson:"is_active" json:"isActive"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
