// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
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
	MaxNameLength        = 50
	MaxDescriptionLength = 200

	inviteAttempts = 10
	inviteAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	ErrGroupNotFound     = apperr.NotFound("Group not found")
	ErrInvalidInviteCode = apperr.NotFound("Invalid invite code")
	ErrAlreadyMember     = apperr.Conflict("You are already a member of this group")
	ErrNotMember         = apperr.Validation("You are not a member of this group")

	ErrInviteCodeExhausted = errors.New("could not generate a unique invite code")
)

type Store struct {
	c       *mongo.Collection
	now     func() time.Time
	newCode func() (string, error)
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups"), now: time.Now, newCode: NewInviteCode}
}

// WithInviteCodes returns a copy of the store that draws invite codes from gen.
func (s *Store) WithInviteCodes(gen func() (string, error)) *Store {
	cp := *s
	cp.newCode = gen
	return &cp
}

// NewInviteCode returns InviteCodeLength upper-case base-36 characters.
func NewInviteCode() (string, error) {
	max := big.NewInt(int64(len(inviteAlphabet)))
	var b strings.Builder
	b.Grow(models.InviteCodeLength)
	for i := 0; i < models.InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode trims and upper-cases a user-typed code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create inserts a group with the creator as its only member. Invite code
// collisions are retried with a fresh code.
func (s *Store) Create(ctx context.Context, name, description string, createdBy primitive.ObjectID) (models.Group, error) {
	name = strings.TrimSpace(htmlsanitize.PlainText(strings.TrimSpace(name)))
	description = strings.TrimSpace(htmlsanitize.PlainText(strings.TrimSpace(description)))

	if name == "" {
		return models.Group{}, apperr.Validation("Group name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return models.Group{}, apperr.Validation(fmt.Sprintf("Group name must be %d characters or fewer", MaxNameLength))
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return models.Group{}, apperr.Validation(fmt.Sprintf("Description must be %d characters or fewer", MaxDescriptionLength))
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	g := models.Group{
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		Members:     []primitive.ObjectID{createdBy},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for attempt := 0; attempt < inviteAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return models.Group{}, fmt.Errorf("generate invite code: %w", err)
		}
		g.ID = primitive.NewObjectID()
		g.InviteCode = code
		if _, err := s.c.InsertOne(ctx, g); err != nil {
			if wafflemongo.IsDup(err) {
				continue
			}
			return models.Group{}, fmt.Errorf("insert group: %w", err)
		}
		return g, nil
	}
	return models.Group{}, ErrInviteCodeExhausted
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrGroupNotFound
		}
		return models.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *Store) GetByInviteCode(ctx context.Context, code string) (models.Group, error) {
	var g models.Group
	err := s.c.FindOne(ctx, bson.M{"invite_code": NormalizeInviteCode(code)}).Decode(&g)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrInvalidInviteCode
		}
		return models.Group{}, fmt.Errorf("get group by invite code: %w", err)
	}
	return g, nil
}

// Join adds userID to the group identified by code and returns the updated
// group. Joining a group twice is a conflict.
func (s *Store) Join(ctx context.Context, code string, userID primitive.ObjectID) (models.Group, error) {
	g, err := s.GetByInviteCode(ctx, code)
	if err != nil {
		return models.Group{}, err
	}

	var out models.Group
	err = s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": g.ID, "members": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"members": userID},
			"$set":      bson.M{"updated_at": s.now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrAlreadyMember
		}
		return models.Group{}, fmt.Errorf("join group: %w", err)
	}
	return out, nil
}

// Leave removes userID from the group.
func (s *Store) Leave(ctx context.Context, groupID, userID primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": groupID, "members": userID},
		bson.M{
			"$pull": bson.M{"members": userID},
			"$set":  bson.M{"updated_at": s.now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return err
	}
	return ErrNotMember
}

// ListForUser returns the active groups userID belongs to, newest first.
func (s *Store) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"members": userID, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.Group{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return out, nil
}

// MemberIDs returns the member list of a group.
func (s *Store) MemberIDs(ctx context.Context, groupID primitive.ObjectID) ([]primitive.ObjectID, error) {
	var doc struct {
		Members []primitive.ObjectID `bson:"members"`
	}
	err := s.c.FindOne(ctx,
		bson.M{"_id": groupID},
		options.FindOne().SetProjection(bson.M{"members": 1}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("group members: %w", err)
	}
	return doc.Members, nil
}
