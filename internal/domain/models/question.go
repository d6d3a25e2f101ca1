// internal/domain/models/question.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Question categories.
const (
	CategoryFriends = "friends"
	CategoryFamily  = "family"
	CategoryGeneral = "general"
)

// QuestionCategories is the canonical list used by validators and input checks.
var QuestionCategories = []string{CategoryFriends, CategoryFamily, CategoryGeneral}

// IsQuestionCategory reports whether c is one of QuestionCategories.
func IsQuestionCategory(c string) bool {
	for _, v := range QuestionCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Question is a dated prompt. Date is midnight of the calendar day in the
// app's configured time zone, stored as UTC. At most one active question
// exists per date (uniq_questions_active_date).
type Question struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Text      string             `bson:"text" json:"text"`
	Category  string             `bson:"category" json:"category"`
	Date      time.Time          `bson:"date" json:"date"`
	IsActive  bool               `bson:"is_active" json:"isActive"`
	CreatedBy string             `bson:"created_by" json:"createdBy"` // "system" or a user id hex
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}
