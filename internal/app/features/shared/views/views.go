// internal/app/features/shared/views/views.go
//
// Package views shapes domain documents into the JSON the web client
// reads. User references are resolved to {id, username} pairs.
package views

import (
	"context"
	"time"

	"github.com/dalemusser/gather/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UnknownUser is shown for user ids that no longer resolve.
const UnknownUser = "Unknown user"

// Usernames resolves user ids in bulk. userstore.Store satisfies it.
type Usernames interface {
	UsernamesByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error)
}

// Names is a resolved id → username map.
type Names map[primitive.ObjectID]string

// Resolve loads usernames for ids, skipping duplicates and zero ids.
func Resolve(ctx context.Context, users Usernames, ids ...primitive.ObjectID) (Names, error) {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	uniq := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	m, err := users.UsernamesByIDs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	return Names(m), nil
}

type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (n Names) Ref(id primitive.ObjectID) UserRef {
	name, ok := n[id]
	if !ok {
		name = UnknownUser
	}
	return UserRef{ID: id.Hex(), Username: name}
}

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	InviteCode  string    `json:"inviteCode"`
	CreatedBy   UserRef   `json:"createdBy"`
	Members     []UserRef `json:"members"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GroupUserIDs lists every user a Group view refers to.
func GroupUserIDs(groups ...models.Group) []primitive.ObjectID {
	var ids []primitive.ObjectID
	for _, g := range groups {
		ids = append(ids, g.CreatedBy)
		ids = append(ids, g.Members...)
	}
	return ids
}

func NewGroup(g models.Group, names Names) Group {
	members := make([]UserRef, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, names.Ref(m))
	}
	return Group{
		ID:          g.ID.Hex(),
		Name:        g.Name,
		Description: g.Description,
		InviteCode:  g.InviteCode,
		CreatedBy:   names.Ref(g.CreatedBy),
		Members:     members,
		MemberCount: len(members),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type Reply struct {
	ID        string    `json:"id"`
	User      UserRef   `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewReply(r models.Reply, names Names) Reply {
	return Reply{
		ID:        r.ID.Hex(),
		User:      names.Ref(r.UserID),
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
	}
}

// Response carries the derived counts and the viewer's own like state.
type Response struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"groupId"`
	QuestionID string    `json:"questionId"`
	User       UserRef   `json:"user"`
	Text       string    `json:"text,omitempty"`
	PhotoURL   string    `json:"photoUrl,omitempty"`
	LikeCount  int       `json:"likeCount"`
	ReplyCount int       `json:"replyCount"`
	IsLiked    bool      `json:"isLiked"`
	Replies    []Reply   `json:"replies"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ResponseUserIDs lists authors and repliers.
func ResponseUserIDs(rs ...models.Response) []primitive.ObjectID {
	var ids []primitive.ObjectID
	for _, r := range rs {
		ids = append(ids, r.UserID)
		for _, rep := range r.Replies {
			ids = append(ids, rep.UserID)
		}
	}
	return ids
}

func NewResponse(r models.Response, viewer primitive.ObjectID, names Names) Response {
	replies := make([]Reply, 0, len(r.Replies))
	for _, rep := range r.Replies {
		replies = append(replies, NewReply(rep, names))
	}
	return Response{
		ID:         r.ID.Hex(),
		GroupID:    r.GroupID.Hex(),
		QuestionID: r.QuestionID.Hex(),
		User:       names.Ref(r.UserID),
		Text:       r.Text,
		PhotoURL:   r.PhotoURL,
		LikeCount:  r.LikeCount(),
		ReplyCount: r.ReplyCount(),
		IsLiked:    r.IsLikedBy(viewer),
		Replies:    replies,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
