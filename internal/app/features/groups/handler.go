// internal/app/features/groups/handler.go
package groups

import (
	"net/http"
	"strings"

	"github.com/dalemusser/gather/internal/app/features/shared/views"
	"github.com/dalemusser/gather/internal/app/policy/grouppolicy"
	groupstore "github.com/dalemusser/gather/internal/app/store/groups"
	userstore "github.com/dalemusser/gather/internal/app/store/users"
	"github.com/dalemusser/gather/internal/app/system/activitycheck"
	"github.com/dalemusser/gather/internal/app/system/auditlog"
	"github.com/dalemusser/gather/internal/app/system/authz"
	"github.com/dalemusser/gather/internal/app/system/httpjson"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/gather/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler is the shared dependency container for the groups feature.
type Handler struct {
	Groups   *groupstore.Store
	Users    *userstore.Store
	Activity *activitycheck.Aggregator
	Audit    *auditlog.Logger
	Log      *zap.Logger
}

// NewHandler constructs a groups Handler. It is called from the bootstrap
// BuildHandler function, where the DB, aggregator and logger already exist.
func NewHandler(db *mongo.Database, activity *activitycheck.Aggregator, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Groups:   groupstore.New(db),
		Users:    userstore.New(db),
		Activity: activity,
		Audit:    audit,
		Log:      logger,
	}
}

type groupEnvelope struct {
	Message string      `json:"message"`
	Group   views.Group `json:"group"`
}

// groupID reads {id}. A malformed id is reported as access denied, the
// same as an unknown group.
func groupID(r *http.Request) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	return oid, err == nil
}

func (h *Handler) groupViews(r *http.Request, gs ...models.Group) ([]views.Group, error) {
	names, err := views.Resolve(r.Context(), h.Users, views.GroupUserIDs(gs...)...)
	if err != nil {
		return nil, err
	}
	out := make([]views.Group, 0, len(gs))
	for _, g := range gs {
		out = append(out, views.NewGroup(g, names))
	}
	return out, nil
}

// ServeList handles GET /api/groups.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list groups")
	defer cancel()
	r = r.WithContext(ctx)

	gs, err := h.Groups.ListForUser(ctx, uid)
	if err != nil {
		httpjson.FromError(w, h.Log, "list groups", err, "Server error fetching groups")
		return
	}
	out, err := h.groupViews(r, gs...)
	if err != nil {
		httpjson.FromError(w, h.Log, "list groups", err, "Server error fetching groups")
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleCreate handles POST /api/groups.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)

	var req createRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "create group", err, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create group")
	defer cancel()
	r = r.WithContext(ctx)

	g, err := h.Groups.Create(ctx, req.Name, req.Description, uid)
	if err != nil {
		httpjson.FromError(w, h.Log, "create group", err, "Server error creating group")
		return
	}
	h.Audit.GroupCreated(ctx, r, uid, g.ID, g.Name)

	out, err := h.groupViews(r, g)
	if err != nil {
		httpjson.FromError(w, h.Log, "create group", err, "Server error creating group")
		return
	}
	httpjson.Write(w, http.StatusCreated, groupEnvelope{Message: "Group created successfully", Group: out[0]})
}

type joinRequest struct {
	InviteCode string `json:"inviteCode"`
}

// HandleJoin handles POST /api/groups/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)

	var req joinRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "join group", err, "")
		return
	}
	if strings.TrimSpace(req.InviteCode) == "" {
		httpjson.Error(w, http.StatusBadRequest, "Invite code is required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "join group")
	defer cancel()
	r = r.WithContext(ctx)

	g, err := h.Groups.Join(ctx, req.InviteCode, uid)
	if err != nil {
		httpjson.FromError(w, h.Log, "join group", err, "Server error joining group")
		return
	}
	h.Audit.GroupJoined(ctx, r, uid, g.ID)

	out, err := h.groupViews(r, g)
	if err != nil {
		httpjson.FromError(w, h.Log, "join group", err, "Server error joining group")
		return
	}
	httpjson.Write(w, http.StatusOK, groupEnvelope{Message: "Successfully joined group", Group: out[0]})
}

// ServeGroup handles GET /api/groups/{id}.
func (h *Handler) ServeGroup(w http.ResponseWriter, r *http.Request) {
	gid, ok := groupID(r)
	if !ok {
		httpjson.FromError(w, h.Log, "get group", grouppolicy.ErrGroupAccessDenied, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get group")
	defer cancel()
	r = r.WithContext(ctx)

	g, err := grouppolicy.RequireRequestMember(ctx, h.Groups, r, gid)
	if err != nil {
		httpjson.FromError(w, h.Log, "get group", err, "Server error fetching group")
		return
	}
	out, err := h.groupViews(r, g)
	if err != nil {
		httpjson.FromError(w, h.Log, "get group", err, "Server error fetching group")
		return
	}
	httpjson.Write(w, http.StatusOK, out[0])
}

// HandleLeave handles DELETE /api/groups/{id}/leave. Unlike the read
// endpoints it distinguishes an unknown group (404) from a non-member (400).
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)
	gid, ok := groupID(r)
	if !ok {
		httpjson.FromError(w, h.Log, "leave group", groupstore.ErrGroupNotFound, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "leave group")
	defer cancel()

	if err := h.Groups.Leave(ctx, gid, uid); err != nil {
		httpjson.FromError(w, h.Log, "leave group", err, "Server error leaving group")
		return
	}
	h.Audit.GroupLeft(ctx, r, uid, gid)
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "Successfully left the group"})
}

// ServeActivity handles GET /api/groups/{id}/activity?since=.
func (h *Handler) ServeActivity(w http.ResponseWriter, r *http.Request) {
	gid, ok := groupID(r)
	if !ok {
		httpjson.FromError(w, h.Log, "activity check", grouppolicy.ErrGroupAccessDenied, "")
		return
	}
	since, err := activitycheck.ParseSince(r.URL.Query().Get("since"))
	if err != nil {
		httpjson.FromError(w, h.Log, "activity check", err, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "activity check")
	defer cancel()

	if _, err := grouppolicy.RequireRequestMember(ctx, h.Groups, r, gid); err != nil {
		httpjson.FromError(w, h.Log, "activity check", err, "Server error checking activity")
		return
	}

	res, err := h.Activity.Check(ctx, gid, since)
	if err != nil {
		httpjson.FromError(w, h.Log, "activity check", err, "Server error checking activity")
		return
	}
	httpjson.Write(w, http.StatusOK, res)
}
