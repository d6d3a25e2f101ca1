// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	authfeature "github.com/dalemusser/gather/internal/app/features/auth"
	groupsfeature "github.com/dalemusser/gather/internal/app/features/groups"
	healthfeature "github.com/dalemusser/gather/internal/app/features/health"
	notificationsfeature "github.com/dalemusser/gather/internal/app/features/notifications"
	questionsfeature "github.com/dalemusser/gather/internal/app/features/questions"
	responsesfeature "github.com/dalemusser/gather/internal/app/features/responses"
	"github.com/dalemusser/gather/internal/app/store/audit"
	groupstore "github.com/dalemusser/gather/internal/app/store/groups"
	questionstore "github.com/dalemusser/gather/internal/app/store/questions"
	responsestore "github.com/dalemusser/gather/internal/app/store/responses"
	subscriptionstore "github.com/dalemusser/gather/internal/app/store/subscriptions"
	userstore "github.com/dalemusser/gather/internal/app/store/users"
	"github.com/dalemusser/gather/internal/app/system/activitycheck"
	"github.com/dalemusser/gather/internal/app/system/auditlog"
	"github.com/dalemusser/gather/internal/app/system/auth"
	"github.com/dalemusser/gather/internal/app/system/httpjson"
	"github.com/dalemusser/gather/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. Every feature is mounted under /api and
// answers JSON; /metrics serves the Prometheus registry.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services
	if svc == nil || svc.Events == nil {
		return nil, errors.New("BuildHandler called before Startup")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	db := deps.MongoDatabase
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Group: appCfg.AuditLogGroup,
	})

	groups := groupstore.New(db)
	users := userstore.New(db)
	responses := responsestore.New(db)
	questions := questionstore.New(db, svc.Location)
	activity := activitycheck.New(responses, users, appCfg.ActivityWindow, logger)

	r := chi.NewRouter()
	r.Use(svc.Metrics.Instrument)

	// Loads SessionUser into context if logged in; RequireSignedIn in the
	// feature routers turns its absence into a 401.
	r.Use(sessionMgr.LoadSessionUser)

	r.Handle("/metrics", svc.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
		api.Mount("/health", healthfeature.Routes(healthHandler))

		authHandler := authfeature.NewHandler(db, sessionMgr, ratelimit.NewLoginLimiter(appCfg.RateLimitAuthPerMinute), auditLog, logger)
		authHandler.MaxFailedLogins = appCfg.LoginLockoutThreshold
		authHandler.FailedLoginWindow = appCfg.LoginLockoutWindow
		api.Mount("/auth", authfeature.Routes(authHandler, sessionMgr))

		groupsHandler := groupsfeature.NewHandler(db, activity, auditLog, logger)
		api.Mount("/groups", groupsfeature.Routes(groupsHandler, sessionMgr, ratelimit.PerMinute(appCfg.RateLimitActivityPerMinute)))

		questionsHandler := questionsfeature.NewHandler(db, svc.Location, logger)
		api.Mount("/questions", questionsfeature.Routes(questionsHandler, sessionMgr))

		responsesHandler := responsesfeature.NewHandler(responses, questions, groups, users, svc.Events, logger)
		api.Mount("/responses", responsesfeature.Routes(responsesHandler, sessionMgr))

		notificationsHandler := notificationsfeature.NewHandler(subscriptionstore.New(db), svc.PushKey, logger)
		api.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, sessionMgr))

		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpjson.Error(w, http.StatusNotFound, "Not found")
		})
	})

	return r, nil
}
