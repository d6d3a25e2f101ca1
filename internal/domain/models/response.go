// internal/domain/models/response.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Response is one user's answer to a question inside a group.
// Likes and replies are embedded and kept in insertion order.
// One response per (group, question, user) is enforced by
// uniq_responses_group_question_user.
type Response struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	GroupID    primitive.ObjectID `bson:"group_id" json:"groupId"`
	UserID     primitive.ObjectID `bson:"user_id" json:"userId"`
	QuestionID primitive.ObjectID `bson:"question_id" json:"questionId"`
	Text       string             `bson:"text,omitempty" json:"text,omitempty"`
	PhotoURL   string             `bson:"photo_url,omitempty" json:"photoUrl,omitempty"`
	Likes      []Like             `bson:"likes" json:"likes"`
	Replies    []Reply            `bson:"replies" json:"replies"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Like records a single user's like. A user appears at most once per response.
type Like struct {
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// Reply is an append-only comment on a response.
type Reply struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	Text      string             `bson:"text" json:"text"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// LikeCount is derived from the likes collection.
func (r Response) LikeCount() int { return len(r.Likes) }

// ReplyCount is derived from the replies collection.
func (r Response) ReplyCount() int { return len(r.Replies) }

// IsLikedBy reports whether userID is among the response's likes.
func (r Response) IsLikedBy(userID primitive.ObjectID) bool {
	for _, l := range r.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}
