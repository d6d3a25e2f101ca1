// internal/app/features/responses/handler.go
package responses

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/gather/internal/app/features/shared/views"
	"github.com/dalemusser/gather/internal/app/policy/grouppolicy"
	groupstore "github.com/dalemusser/gather/internal/app/store/groups"
	questionstore "github.com/dalemusser/gather/internal/app/store/questions"
	responsestore "github.com/dalemusser/gather/internal/app/store/responses"
	userstore "github.com/dalemusser/gather/internal/app/store/users"
	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/app/system/authz"
	"github.com/dalemusser/gather/internal/app/system/httpjson"
	"github.com/dalemusser/gather/internal/app/system/notify"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/gather/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler wires the response store to membership checks and notification
// events.
type Handler struct {
	Responses *responsestore.Store
	Questions *questionstore.Store
	Groups    *groupstore.Store
	Users     *userstore.Store
	Events    *notify.Events
	Log       *zap.Logger
}

func NewHandler(responses *responsestore.Store, questions *questionstore.Store, groups *groupstore.Store,
	users *userstore.Store, events *notify.Events, logger *zap.Logger) *Handler {
	return &Handler{
		Responses: responses,
		Questions: questions,
		Groups:    groups,
		Users:     users,
		Events:    events,
		Log:       logger,
	}
}

var errIDsRequired = apperr.Validation("Group ID and Question ID are required")

func (h *Handler) responseViews(r *http.Request, viewer primitive.ObjectID, rs ...models.Response) ([]views.Response, error) {
	names, err := views.Resolve(r.Context(), h.Users, views.ResponseUserIDs(rs...)...)
	if err != nil {
		return nil, err
	}
	out := make([]views.Response, 0, len(rs))
	for _, resp := range rs {
		out = append(out, views.NewResponse(resp, viewer, names))
	}
	return out, nil
}

type groupResponses struct {
	Question  models.Question  `json:"question"`
	Responses []views.Response `json:"responses"`
}

// ServeGroupResponses handles GET /api/responses/group/{groupID}. Without
// a questionId it lists answers to today's question.
func (h *Handler) ServeGroupResponses(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)
	gid, err := primitive.ObjectIDFromHex(chi.URLParam(r, "groupID"))
	if err != nil {
		httpjson.FromError(w, h.Log, "list responses", grouppolicy.ErrGroupAccessDenied, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list responses")
	defer cancel()
	r = r.WithContext(ctx)

	if _, err := grouppolicy.RequireRequestMember(ctx, h.Groups, r, gid); err != nil {
		httpjson.FromError(w, h.Log, "list responses", err, "Server error fetching responses")
		return
	}

	var q models.Question
	if raw := strings.TrimSpace(r.URL.Query().Get("questionId")); raw != "" {
		qid, perr := primitive.ObjectIDFromHex(raw)
		if perr != nil {
			httpjson.FromError(w, h.Log, "list responses", questionstore.ErrQuestionNotFound, "")
			return
		}
		q, err = h.Questions.GetByID(ctx, qid)
	} else {
		q, _, err = h.Questions.Today(ctx)
	}
	if err != nil {
		httpjson.FromError(w, h.Log, "list responses", err, "Server error fetching responses")
		return
	}

	rs, err := h.Responses.ListByGroupAndQuestion(ctx, gid, q.ID)
	if err != nil {
		httpjson.FromError(w, h.Log, "list responses", err, "Server error fetching responses")
		return
	}
	out, err := h.responseViews(r, uid, rs...)
	if err != nil {
		httpjson.FromError(w, h.Log, "list responses", err, "Server error fetching responses")
		return
	}
	httpjson.Write(w, http.StatusOK, groupResponses{Question: q, Responses: out})
}

type submitRequest struct {
	GroupID    string `json:"groupId"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	PhotoURL   string `json:"photoUrl"`
}

type responseEnvelope struct {
	Message  string         `json:"message"`
	Response views.Response `json:"response"`
}

// HandleSubmit handles POST /api/responses.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	name, uid, _ := authz.UserCtx(r)

	var req submitRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "submit response", err, "")
		return
	}
	gid, gerr := primitive.ObjectIDFromHex(strings.TrimSpace(req.GroupID))
	qid, qerr := primitive.ObjectIDFromHex(strings.TrimSpace(req.QuestionID))
	if req.GroupID == "" || req.QuestionID == "" {
		httpjson.FromError(w, h.Log, "submit response", errIDsRequired, "")
		return
	}
	if gerr != nil {
		httpjson.FromError(w, h.Log, "submit response", grouppolicy.ErrGroupAccessDenied, "")
		return
	}
	if qerr != nil {
		httpjson.FromError(w, h.Log, "submit response", questionstore.ErrQuestionNotFound, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "submit response")
	defer cancel()

	if _, err := grouppolicy.RequireRequestMember(ctx, h.Groups, r, gid); err != nil {
		httpjson.FromError(w, h.Log, "submit response", err, "Server error submitting response")
		return
	}
	if _, err := h.Questions.GetByID(ctx, qid); err != nil {
		httpjson.FromError(w, h.Log, "submit response", err, "Server error submitting response")
		return
	}

	resp, err := h.Responses.Submit(ctx, responsestore.SubmitInput{
		GroupID:    gid,
		QuestionID: qid,
		AuthorID:   uid,
		Text:       req.Text,
		PhotoURL:   req.PhotoURL,
	})
	if err != nil {
		httpjson.FromError(w, h.Log, "submit response", err, "Server error submitting response")
		return
	}
	h.Events.ResponseCreated(r.Context(), resp, name)

	out := views.NewResponse(resp, uid, views.Names{uid: name})
	httpjson.Write(w, http.StatusCreated, responseEnvelope{Message: "Response submitted successfully", Response: out})
}

// loadForMember fetches a response and checks the caller belongs to its
// group. An unknown response is 404; a non-member is 403.
func (h *Handler) loadForMember(r *http.Request, op string) (models.Response, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		return models.Response{}, responsestore.ErrResponseNotFound
	}
	resp, err := h.Responses.GetByID(r.Context(), id)
	if err != nil {
		return models.Response{}, err
	}
	if _, err := grouppolicy.RequireRequestMember(r.Context(), h.Groups, r, resp.GroupID); err != nil {
		if errors.Is(err, apperr.ErrAccessDenied) {
			h.Log.Debug(op+": not a member",
				zap.String("response_id", resp.ID.Hex()),
				zap.String("group_id", resp.GroupID.Hex()))
		}
		return models.Response{}, err
	}
	return resp, nil
}

type likeResponse struct {
	Message string `json:"message"`
	responsestore.LikeResult
}

// HandleToggleLike handles PUT /api/responses/{id}/like.
func (h *Handler) HandleToggleLike(w http.ResponseWriter, r *http.Request) {
	name, uid, _ := authz.UserCtx(r)
	parent := r.Context()

	ctx, cancel := timeouts.WithTimeout(parent, timeouts.Short(), h.Log, "toggle like")
	defer cancel()
	r = r.WithContext(ctx)

	resp, err := h.loadForMember(r, "toggle like")
	if err != nil {
		httpjson.FromError(w, h.Log, "toggle like", err, "Server error updating like")
		return
	}
	res, err := h.Responses.ToggleLike(ctx, resp.ID, uid)
	if err != nil {
		httpjson.FromError(w, h.Log, "toggle like", err, "Server error updating like")
		return
	}

	msg := "Response unliked"
	if res.IsLiked {
		msg = "Response liked"
		h.Events.ResponseLiked(parent, resp, uid, name)
	}
	httpjson.Write(w, http.StatusOK, likeResponse{Message: msg, LikeResult: res})
}

type replyRequest struct {
	Text string `json:"text"`
}

type replyEnvelope struct {
	Message string      `json:"message"`
	Reply   views.Reply `json:"reply"`
}

// HandleReply handles POST /api/responses/{id}/reply.
func (h *Handler) HandleReply(w http.ResponseWriter, r *http.Request) {
	name, uid, _ := authz.UserCtx(r)
	parent := r.Context()

	var req replyRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "add reply", err, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(parent, timeouts.Short(), h.Log, "add reply")
	defer cancel()
	r = r.WithContext(ctx)

	resp, err := h.loadForMember(r, "add reply")
	if err != nil {
		httpjson.FromError(w, h.Log, "add reply", err, "Server error adding reply")
		return
	}
	reply, err := h.Responses.AddReply(ctx, resp.ID, uid, req.Text)
	if err != nil {
		httpjson.FromError(w, h.Log, "add reply", err, "Server error adding reply")
		return
	}
	h.Events.ReplyAdded(parent, resp, reply, name)

	out := views.NewReply(reply, views.Names{uid: name})
	httpjson.Write(w, http.StatusCreated, replyEnvelope{Message: "Reply added successfully", Reply: out})
}
