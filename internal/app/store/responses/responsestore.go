// internal/app/store/responses/responsestore.go
package responsestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/app/system/htmlsanitize"
	"github.com/dalemusser/gather/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	MaxTextLength  = 1000
	MaxReplyLength = 500

	// toggleAttempts bounds the retries when a concurrent toggle flips the
	// like state between the unlike and like branches.
	toggleAttempts = 3
)

var (
	ErrResponseNotFound = apperr.NotFound("Response not found")
	ErrAlreadyResponded = apperr.Conflict("You have already responded to this question")
)

type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("responses"), now: time.Now}
}

// WithClock returns a copy of the store that stamps writes with now.
func (s *Store) WithClock(now func() time.Time) *Store {
	cp := *s
	cp.now = now
	return &cp
}

// timestamps are truncated to what BSON dates can hold so that values read
// back compare equal to values written.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

type SubmitInput struct {
	GroupID    primitive.ObjectID
	QuestionID primitive.ObjectID
	AuthorID   primitive.ObjectID
	Text       string
	PhotoURL   string
}

// Submit stores a new response. A user may answer a question once per
// group; the pre-check gives the friendly error and the unique index
// uniq_responses_group_question_user settles concurrent submissions.
func (s *Store) Submit(ctx context.Context, in SubmitInput) (models.Response, error) {
	txt := strings.TrimSpace(htmlsanitize.PlainText(strings.TrimSpace(in.Text)))
	photo := strings.TrimSpace(in.PhotoURL)

	if txt == "" && photo == "" {
		return models.Response{}, apperr.Validation("Either text or photo is required")
	}
	if utf8.RuneCountInString(txt) > MaxTextLength {
		return models.Response{}, apperr.Validation(fmt.Sprintf("Response must be %d characters or fewer", MaxTextLength))
	}

	key := bson.M{
		"group_id":    in.GroupID,
		"question_id": in.QuestionID,
		"user_id":     in.AuthorID,
	}
	n, err := s.c.CountDocuments(ctx, key, options.Count().SetLimit(1))
	if err != nil {
		return models.Response{}, fmt.Errorf("check existing response: %w", err)
	}
	if n > 0 {
		return models.Response{}, ErrAlreadyResponded
	}

	now := s.stamp()
	r := models.Response{
		ID:         primitive.NewObjectID(),
		GroupID:    in.GroupID,
		UserID:     in.AuthorID,
		QuestionID: in.QuestionID,
		Text:       txt,
		PhotoURL:   photo,
		Likes:      []models.Like{},
		Replies:    []models.Reply{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.c.InsertOne(ctx, r); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Response{}, ErrAlreadyResponded
		}
		return models.Response{}, fmt.Errorf("insert response: %w", err)
	}
	return r, nil
}

// LikeResult is the state after a toggle.
type LikeResult struct {
	IsLiked   bool `json:"isLiked"`
	LikeCount int  `json:"likeCount"`
}

// ToggleLike removes userID's like if present, otherwise adds one.
// Both branches are conditional single-document updates so a user never
// appears twice among likes, even with concurrent togglers.
func (s *Store) ToggleLike(ctx context.Context, responseID, userID primitive.ObjectID) (LikeResult, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; attempt < toggleAttempts; attempt++ {
		now := s.stamp()

		var doc models.Response
		err := s.c.FindOneAndUpdate(ctx,
			bson.M{"_id": responseID, "likes.user_id": userID},
			bson.M{
				"$pull": bson.M{"likes": bson.M{"user_id": userID}},
				"$set":  bson.M{"updated_at": now},
			},
			after,
		).Decode(&doc)
		if err == nil {
			return LikeResult{IsLiked: false, LikeCount: doc.LikeCount()}, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return LikeResult{}, fmt.Errorf("unlike response: %w", err)
		}

		err = s.c.FindOneAndUpdate(ctx,
			bson.M{"_id": responseID, "likes.user_id": bson.M{"$ne": userID}},
			bson.M{
				"$push": bson.M{"likes": models.Like{UserID: userID, CreatedAt: now}},
				"$set":  bson.M{"updated_at": now},
			},
			after,
		).Decode(&doc)
		if err == nil {
			return LikeResult{IsLiked: true, LikeCount: doc.LikeCount()}, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return LikeResult{}, fmt.Errorf("like response: %w", err)
		}

		// Neither branch matched: the response is gone, or another toggle
		// by the same user landed in between.
		exists, err := s.exists(ctx, responseID)
		if err != nil {
			return LikeResult{}, err
		}
		if !exists {
			return LikeResult{}, ErrResponseNotFound
		}
	}
	return LikeResult{}, apperr.Conflict("Like is changing too quickly, please try again")
}

// AddReply appends a reply. Existing replies are never modified.
func (s *Store) AddReply(ctx context.Context, responseID, userID primitive.ObjectID, text string) (models.Reply, error) {
	txt := strings.TrimSpace(htmlsanitize.PlainText(strings.TrimSpace(text)))
	if txt == "" {
		return models.Reply{}, apperr.Validation("Reply text is required")
	}
	if utf8.RuneCountInString(txt) > MaxReplyLength {
		return models.Reply{}, apperr.Validation(fmt.Sprintf("Reply must be %d characters or fewer", MaxReplyLength))
	}

	now := s.stamp()
	reply := models.Reply{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Text:      txt,
		CreatedAt: now,
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": responseID},
		bson.M{
			"$push": bson.M{"replies": reply},
			"$set":  bson.M{"updated_at": now},
		},
	)
	if err != nil {
		return models.Reply{}, fmt.Errorf("add reply: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.Reply{}, ErrResponseNotFound
	}
	return reply, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Response, error) {
	var r models.Response
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Response{}, ErrResponseNotFound
		}
		return models.Response{}, fmt.Errorf("get response: %w", err)
	}
	return r, nil
}

// ListByGroupAndQuestion returns the group's responses to a question,
// oldest first.
func (s *Store) ListByGroupAndQuestion(ctx context.Context, groupID, questionID primitive.ObjectID) ([]models.Response, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"group_id": groupID, "question_id": questionID},
		options.Find().SetSort(oldestFirst),
	)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.Response{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}
	return out, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Activity queries                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

var oldestFirst = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// CountCreatedSince counts the group's responses created strictly after since.
func (s *Store) CountCreatedSince(ctx context.Context, groupID primitive.ObjectID, since time.Time) (int64, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{
		"group_id":   groupID,
		"created_at": bson.M{"$gt": since},
	})
	if err != nil {
		return 0, fmt.Errorf("count new responses: %w", err)
	}
	return n, nil
}

// FirstCreatedSince returns the earliest response created after since.
// found is false when there is none.
func (s *Store) FirstCreatedSince(ctx context.Context, groupID primitive.ObjectID, since time.Time) (r models.Response, found bool, err error) {
	err = s.c.FindOne(ctx,
		bson.M{"group_id": groupID, "created_at": bson.M{"$gt": since}},
		options.FindOne().SetSort(oldestFirst),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Response{}, false, nil
	}
	if err != nil {
		return models.Response{}, false, fmt.Errorf("first new response: %w", err)
	}
	return r, true, nil
}

// CountUpdatedSince counts the group's responses that received a like or a
// reply strictly after since, whenever the response itself was created.
func (s *Store) CountUpdatedSince(ctx context.Context, groupID primitive.ObjectID, since time.Time) (int64, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{
		"group_id": groupID,
		"$or": bson.A{
			bson.M{"likes.created_at": bson.M{"$gt": since}},
			bson.M{"replies.created_at": bson.M{"$gt": since}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count updated responses: %w", err)
	}
	return n, nil
}

func (s *Store) exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check response: %w", err)
	}
	return n > 0, nil
}
