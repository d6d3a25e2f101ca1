// internal/app/features/auth/handler.go
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/gather/internal/app/store/audit"
	userstore "github.com/dalemusser/gather/internal/app/store/users"
	"github.com/dalemusser/gather/internal/app/system/auditlog"
	sysauth "github.com/dalemusser/gather/internal/app/system/auth"
	"github.com/dalemusser/gather/internal/app/system/authz"
	"github.com/dalemusser/gather/internal/app/system/httpjson"
	"github.com/dalemusser/gather/internal/app/system/ratelimit"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	DefaultMaxFailedLogins   = 10
	DefaultFailedLoginWindow = 15 * time.Minute

	activityDefaultLimit = 20
	activityMaxLimit     = 100
)

// Handler serves account registration and password sign-in.
type Handler struct {
	Users    *userstore.Store
	Events   *audit.Store
	Sessions *sysauth.SessionManager
	Limiter  *ratelimit.LoginLimiter
	Audit    *auditlog.Logger
	Log      *zap.Logger

	// An account with MaxFailedLogins recorded bad-credential attempts
	// inside FailedLoginWindow is locked until the oldest ages out.
	// Zero disables the lockout.
	MaxFailedLogins   int
	FailedLoginWindow time.Duration
}

func NewHandler(db *mongo.Database, sm *sysauth.SessionManager, limiter *ratelimit.LoginLimiter, audits *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:             userstore.New(db),
		Events:            audit.New(db),
		Sessions:          sm,
		Limiter:           limiter,
		Audit:             audits,
		Log:               logger,
		MaxFailedLogins:   DefaultMaxFailedLogins,
		FailedLoginWindow: DefaultFailedLoginWindow,
	}
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type userResponse struct {
	Message string   `json:"message,omitempty"`
	User    userView `json:"user"`
}

func newUserView(u models.User) userView {
	return userView{ID: u.ID.Hex(), Username: u.Username, Email: u.Email}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates an account and signs it in.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "register", err, "")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "register")
	defer cancel()

	u, err := h.Users.Create(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		httpjson.FromError(w, h.Log, "register", err, "Server error during registration")
		return
	}
	h.Audit.Registered(ctx, r, u.ID, u.Email)

	if !h.signIn(w, r, u) {
		return
	}
	httpjson.Write(w, http.StatusCreated, userResponse{Message: "User registered successfully", User: newUserView(u)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin checks credentials under the login rate limiter.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.FromError(w, h.Log, "login", err, "")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpjson.Error(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "login")
	defer cancel()

	email := userstore.NormalizeEmail(req.Email)
	if h.Limiter != nil {
		if ok, reason := h.Limiter.Check(r, req.Email); !ok {
			h.Audit.LoginRateLimited(ctx, r, email)
			httpjson.Error(w, http.StatusTooManyRequests, reason)
			return
		}
	}

	locked, err := h.lockedOut(ctx, email)
	if err != nil {
		httpjson.FromError(w, h.Log, "login", err, "Server error during login")
		return
	}
	if locked {
		h.Audit.LoginRateLimited(ctx, r, email)
		httpjson.Error(w, http.StatusTooManyRequests, "Too many failed login attempts for this account. Please try again later.")
		return
	}

	u, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, userstore.ErrInvalidCredentials) {
			h.Audit.LoginFailed(ctx, r, email)
			httpjson.Error(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		httpjson.FromError(w, h.Log, "login", err, "Server error during login")
		return
	}
	if h.Limiter != nil {
		h.Limiter.ResetEmail(req.Email)
	}
	h.Audit.LoginSuccess(ctx, r, u.ID, u.Email)

	if !h.signIn(w, r, u) {
		return
	}
	httpjson.Write(w, http.StatusOK, userResponse{Message: "Login successful", User: newUserView(u)})
}

// lockedOut reports whether email has too many recent bad-credential
// attempts in the audit trail.
func (h *Handler) lockedOut(ctx context.Context, email string) (bool, error) {
	if h.Events == nil || h.MaxFailedLogins <= 0 || h.FailedLoginWindow <= 0 {
		return false, nil
	}
	n, err := h.Events.CountFailedLogins(ctx, email, time.Now().UTC().Add(-h.FailedLoginWindow))
	if err != nil {
		return false, err
	}
	return n >= int64(h.MaxFailedLogins), nil
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, u models.User) bool {
	err := h.Sessions.SignIn(w, r, sysauth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.Username,
		Email: u.Email,
	})
	if err != nil {
		h.Log.Error("save session failed", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		httpjson.Error(w, http.StatusInternalServerError, "Could not start a session")
		return false
	}
	return true
}

// HandleLogout clears the session. It succeeds for signed-out callers too.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if _, uid, ok := authz.UserCtx(r); ok {
		h.Audit.Logout(r.Context(), r, uid)
	}
	if err := h.Sessions.SignOut(w, r); err != nil {
		h.Log.Warn("clear session failed", zap.Error(err))
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// ServeMe returns the signed-in account.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "Please sign in to continue")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "current user")
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		httpjson.FromError(w, h.Log, "current user", err, "Server error fetching user")
		return
	}
	httpjson.Write(w, http.StatusOK, userResponse{User: newUserView(u)})
}

type activityEvent struct {
	Category  string    `json:"category"`
	EventType string    `json:"eventType"`
	Success   bool      `json:"success"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent,omitempty"`
	GroupID   string    `json:"groupId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ServeActivity lists the signed-in user's own audit events, newest first.
// Optional query parameters: category (auth or group) and limit.
func (h *Handler) ServeActivity(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "Please sign in to continue")
		return
	}

	filter := audit.QueryFilter{UserID: &uid, Limit: activityDefaultLimit}
	switch c := r.URL.Query().Get("category"); c {
	case "":
	case audit.CategoryAuth, audit.CategoryGroup:
		filter.Category = c
	default:
		httpjson.Error(w, http.StatusBadRequest, "category must be auth or group")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpjson.Error(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		if n > activityMaxLimit {
			n = activityMaxLimit
		}
		filter.Limit = int64(n)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "account activity")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		httpjson.FromError(w, h.Log, "account activity", err, "Server error fetching activity")
		return
	}
	out := make([]activityEvent, 0, len(events))
	for _, e := range events {
		v := activityEvent{
			Category:  e.Category,
			EventType: e.EventType,
			Success:   e.Success,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Timestamp: e.Timestamp,
		}
		if e.GroupID != nil {
			v.GroupID = e.GroupID.Hex()
		}
		out = append(out, v)
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"events": out})
}
