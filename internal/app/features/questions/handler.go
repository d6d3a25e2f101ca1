// internal/app/features/questions/handler.go
package questions

import (
	"net/http"
	"strings"
	"time"

	questionstore "github.com/dalemusser/gather/internal/app/store/questions"
	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/app/system/authz"
	"github.com/dalemusser/gather/internal/app/system/httpjson"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	Questions *questionstore.Store
	Log       *zap.Logger
}

// NewHandler builds the handler; loc is the zone question dates are
// computed in (nil means UTC).
func NewHandler(db *mongo.Database, loc *time.Location, logger *zap.Logger) *Handler {
	return &Handler{
		Questions: questionstore.New(db, loc),
		Log:       logger,
	}
}

// ServeToday handles GET /api/questions/today, creating a default
// question when none is scheduled.
func (h *Handler) ServeToday(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "today's question")
	defer cancel()

	q, created, err := h.Questions.Today(ctx)
	if err != nil {
		httpjson.FromError(w, h.Log, "today's question", err, "Server error fetching question")
		return
	}
	if created {
		h.Log.Info("default question created", zap.String("question_id", q.ID.Hex()), zap.Time("date", q.Date))
	}
	httpjson.Write(w, http.StatusOK, q)
}

type createRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Date     string `json:"date"` // YYYY-MM-DD or RFC 3339; empty means today
}

type createResponse struct {
	Message  string          `json:"message"`
	Question models.Question `json:"question"`
}

// parseDate reads a calendar date in loc.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("Date must be YYYY-MM-DD or an RFC 3339 timestamp")
}

// HandleCreate handles POST /api/questions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	_, uid, _ := authz.UserCtx(r)

	var req createRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "create question", err, "")
		return
	}
	date, err := parseDate(req.Date, h.Questions.Location())
	if err != nil {
		httpjson.FromError(w, h.Log, "create question", err, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create question")
	defer cancel()

	q, err := h.Questions.Create(ctx, questionstore.CreateInput{
		Text:      req.Text,
		Category:  req.Category,
		Date:      date,
		CreatedBy: uid.Hex(),
	})
	if err != nil {
		httpjson.FromError(w, h.Log, "create question", err, "Server error creating question")
		return
	}
	httpjson.Write(w, http.StatusCreated, createResponse{Message: "Question created successfully", Question: q})
}

// ServeHistory handles GET /api/questions/history.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "question history")
	defer cancel()

	qs, err := h.Questions.History(ctx, questionstore.HistoryLimit)
	if err != nil {
		httpjson.FromError(w, h.Log, "question history", err, "Server error fetching questions history")
		return
	}
	httpjson.Write(w, http.StatusOK, qs)
}
