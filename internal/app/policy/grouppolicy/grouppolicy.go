// internal/app/policy/grouppolicy/grouppolicy.go
package grouppolicy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/app/system/authz"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrGroupAccessDenied is returned for unknown groups and for groups the
// user does not belong to alike, so callers cannot discover which group ids exist.
var ErrGroupAccessDenied = apperr.AccessDenied("Access denied to this group")

// GroupGetter loads a group by id, returning an apperr NotFound error when
// it does not exist. groupstore.Store satisfies it.
type GroupGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
}

// IsMember reports whether userID is in the group's member set.
func IsMember(g models.Group, userID primitive.ObjectID) bool {
	if userID.IsZero() {
		return false
	}
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// RequireMember loads the group and returns it when userID is a member.
// Storage failures come back wrapped and are not access-denied errors.
func RequireMember(ctx context.Context, groups GroupGetter, groupID, userID primitive.ObjectID) (models.Group, error) {
	g, err := groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Group{}, ErrGroupAccessDenied
		}
		return models.Group{}, fmt.Errorf("load group for membership check: %w", err)
	}
	if !IsMember(g, userID) {
		return models.Group{}, ErrGroupAccessDenied
	}
	return g, nil
}

// RequireRequestMember is RequireMember for the signed-in user of r.
func RequireRequestMember(ctx context.Context, groups GroupGetter, r *http.Request, groupID primitive.ObjectID) (models.Group, error) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		return models.Group{}, ErrGroupAccessDenied
	}
	return RequireMember(ctx, groups, groupID, uid)
}
