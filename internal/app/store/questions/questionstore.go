// internal/app/store/questions/questionstore.go
package questionstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
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
	MaxTextLength = 500
	HistoryLimit  = 30

	CreatedBySystem = "system"
)

// DefaultQuestions seed a day that has no scheduled question.
var DefaultQuestions = []string{
	"What's the best thing that happened to you this week?",
	"If you could have dinner with anyone, who would it be and why?",
	"What's your favorite childhood memory?",
	"What's something new you learned recently?",
	"What's your go-to comfort food?",
	"If you could travel anywhere right now, where would you go?",
	"What's the last book or movie that really impressed you?",
	"What's something you're looking forward to?",
	"What's the best advice you've ever received?",
	"What's your favorite way to spend a lazy Sunday?",
}

var (
	ErrQuestionNotFound = apperr.NotFound("Question not found")
	ErrQuestionExists   = apperr.Conflict("A question already exists for this date")
)

type Store struct {
	c    *mongo.Collection
	loc  *time.Location
	now  func() time.Time
	pick func(n int) int
}

// New returns a store whose calendar days are computed in loc (UTC when nil).
func New(db *mongo.Database, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{c: db.Collection("questions"), loc: loc, now: time.Now, pick: rand.IntN}
}

// WithClock returns a copy of the store that reads the time from now.
func (s *Store) WithClock(now func() time.Time) *Store {
	cp := *s
	cp.now = now
	return &cp
}

// Location is the zone calendar days are computed in.
func (s *Store) Location() *time.Location { return s.loc }

// DayStart returns midnight of t's calendar day in loc, as UTC.
func DayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC()
}

// Today returns today's active question, creating one from
// DefaultQuestions when none is scheduled. created reports whether this
// call inserted it.
func (s *Store) Today(ctx context.Context) (q models.Question, created bool, err error) {
	day := DayStart(s.now(), s.loc)

	q, err = s.activeOn(ctx, day)
	if err == nil {
		return q, false, nil
	}
	if !errors.Is(err, ErrQuestionNotFound) {
		return models.Question{}, false, err
	}

	q = models.Question{
		ID:        primitive.NewObjectID(),
		Text:      DefaultQuestions[s.pick(len(DefaultQuestions))],
		Category:  models.CategoryGeneral,
		Date:      day,
		IsActive:  true,
		CreatedBy: CreatedBySystem,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, q); err != nil {
		if wafflemongo.IsDup(err) {
			// another request created it first
			q, err = s.activeOn(ctx, day)
			return q, false, err
		}
		return models.Question{}, false, fmt.Errorf("insert default question: %w", err)
	}
	return q, true, nil
}

// CreateInput describes a scheduled question. A zero Date means today;
// any other value is truncated to its calendar day.
type CreateInput struct {
	Text      string
	Category  string
	Date      time.Time
	CreatedBy string
}

func (s *Store) Create(ctx context.Context, in CreateInput) (models.Question, error) {
	txt := strings.TrimSpace(htmlsanitize.PlainText(strings.TrimSpace(in.Text)))
	if txt == "" {
		return models.Question{}, apperr.Validation("Question text is required")
	}
	if utf8.RuneCountInString(txt) > MaxTextLength {
		return models.Question{}, apperr.Validation(fmt.Sprintf("Question must be %d characters or fewer", MaxTextLength))
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		category = models.CategoryGeneral
	}
	if !models.IsQuestionCategory(category) {
		return models.Question{}, apperr.Validation("Category must be one of friends, family, general")
	}
	when := in.Date
	if when.IsZero() {
		when = s.now()
	}
	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = CreatedBySystem
	}

	q := models.Question{
		ID:        primitive.NewObjectID(),
		Text:      txt,
		Category:  category,
		Date:      DayStart(when, s.loc),
		IsActive:  true,
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, q); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Question{}, ErrQuestionExists
		}
		return models.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

// History returns up to limit active questions, newest date first.
func (s *Store) History(ctx context.Context, limit int64) ([]models.Question, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	cur, err := s.c.Find(ctx,
		bson.M{"is_active": true},
		options.Find().SetSort(bson.D{{Key: "date", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("question history: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.Question{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Question, error) {
	var q models.Question
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&q); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *Store) activeOn(ctx context.Context, day time.Time) (models.Question, error) {
	var q models.Question
	err := s.c.FindOne(ctx, bson.M{"date": day, "is_active": true}).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, fmt.Errorf("get question for day: %w", err)
	}
	return q, nil
}
