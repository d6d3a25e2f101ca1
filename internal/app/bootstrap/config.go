// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/gather/internal/app/system/activitycheck"
	"github.com/dalemusser/gather/internal/app/system/auditlog"
	"github.com/dalemusser/gather/internal/app/system/notify"
	"github.com/dalemusser/gather/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Gather.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: GATHER_MONGO_URI, GATHER_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "gather", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "gather-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime (e.g., 24h, 720h)"},

	// Web push
	{Name: "vapid_public_key", Default: "", Desc: "VAPID public key (blank disables push delivery)"},
	{Name: "vapid_private_key", Default: "", Desc: "VAPID private key"},
	{Name: "vapid_subscriber", Default: "mailto:admin@localhost", Desc: "Contact the push service can reach (mailto: or https URL)"},
	{Name: "push_ttl", Default: notify.DefaultTTL, Desc: "Seconds an undelivered push is kept by the push service"},

	// Daily question
	{Name: "time_zone", Default: "UTC", Desc: "IANA time zone for question dates (e.g., America/Chicago)"},
	{Name: "daily_question_schedule", Default: "0 9 * * *", Desc: "Cron spec for the daily question announcement"},

	// Housekeeping
	{Name: "subscription_prune_schedule", Default: "30 3 * * *", Desc: "Cron spec for deleting long-inactive push subscriptions"},
	{Name: "subscription_retention", Default: "720h", Desc: "How long an inactive push subscription is kept"},

	// Activity polling and rate limits
	{Name: "activity_window", Default: "60s", Desc: "Look-back for activity polls that send no watermark"},
	{Name: "ratelimit_activity_per_minute", Default: 30, Desc: "Activity polls allowed per user per minute"},
	{Name: "ratelimit_auth_per_minute", Default: 10, Desc: "Login attempts allowed per IP per minute"},
	{Name: "login_lockout_threshold", Default: 10, Desc: "Failed logins that lock an account for the lockout window (0 disables)"},
	{Name: "login_lockout_window", Default: "15m", Desc: "Window failed logins are counted over"},

	// Timeouts
	{Name: "timeout_short", Default: "", Desc: "Timeout for single-document operations (e.g., 5s)"},
	{Name: "timeout_medium", Default: "", Desc: "Timeout for list and aggregate operations (e.g., 10s)"},
	{Name: "timeout_long", Default: "", Desc: "Timeout for background jobs and fanout (e.g., 30s)"},
	{Name: "timeout_push", Default: "", Desc: "Timeout for a single push delivery (e.g., 15s)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_group", Default: "all", Desc: "Group event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, GATHER_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GATHER", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 30*24*time.Hour),

		VAPIDPublicKey:  appValues.String("vapid_public_key"),
		VAPIDPrivateKey: appValues.String("vapid_private_key"),
		VAPIDSubscriber: appValues.String("vapid_subscriber"),
		PushTTL:         appValues.Int("push_ttl"),

		TimeZone:              appValues.String("time_zone"),
		DailyQuestionSchedule: appValues.String("daily_question_schedule"),

		SubscriptionPruneSchedule: appValues.String("subscription_prune_schedule"),
		SubscriptionRetention:     appValues.Duration("subscription_retention", 30*24*time.Hour),

		ActivityWindow:             appValues.Duration("activity_window", activitycheck.DefaultWindow),
		RateLimitActivityPerMinute: appValues.Int("ratelimit_activity_per_minute"),
		RateLimitAuthPerMinute:     appValues.Int("ratelimit_auth_per_minute"),
		LoginLockoutThreshold:      appValues.Int("login_lockout_threshold"),
		LoginLockoutWindow:         appValues.Duration("login_lockout_window", 15*time.Minute),

		TimeoutShort:  appValues.Duration("timeout_short", 0),
		TimeoutMedium: appValues.Duration("timeout_medium", 0),
		TimeoutLong:   appValues.Duration("timeout_long", 0),
		TimeoutPush:   appValues.Duration("timeout_push", 0),

		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogGroup: appValues.String("audit_log_group"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Gather checks the MongoDB URI, the time zone, the daily cron spec and
// the VAPID key pair before anything connects.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return errors.New("mongo_database is required")
	}
	if _, err := loadLocation(appCfg.TimeZone); err != nil {
		return err
	}
	if err := tasks.ValidateSpec(appCfg.DailyQuestionSchedule); err != nil {
		return fmt.Errorf("invalid daily_question_schedule: %w", err)
	}
	if err := tasks.ValidateSpec(appCfg.SubscriptionPruneSchedule); err != nil {
		return fmt.Errorf("invalid subscription_prune_schedule: %w", err)
	}
	if (appCfg.VAPIDPublicKey == "") != (appCfg.VAPIDPrivateKey == "") {
		return errors.New("vapid_public_key and vapid_private_key must be set together")
	}
	if appCfg.VAPIDPublicKey != "" && appCfg.VAPIDSubscriber == "" {
		return errors.New("vapid_subscriber is required when VAPID keys are set")
	}
	if appCfg.RateLimitActivityPerMinute <= 0 || appCfg.RateLimitAuthPerMinute <= 0 {
		return errors.New("rate limits must be positive")
	}
	if appCfg.LoginLockoutThreshold < 0 {
		return errors.New("login_lockout_threshold must not be negative")
	}
	if appCfg.LoginLockoutThreshold > 0 && appCfg.LoginLockoutWindow <= 0 {
		return errors.New("login_lockout_window must be positive when the lockout is enabled")
	}
	for _, v := range []string{appCfg.AuditLogAuth, appCfg.AuditLogGroup} {
		switch v {
		case "", auditlog.All, auditlog.DB, auditlog.Log, auditlog.Off:
		default:
			return fmt.Errorf("invalid audit log destination %q (want all, db, log or off)", v)
		}
	}
	if appCfg.VAPIDPublicKey == "" {
		logger.Warn("VAPID keys not configured; push notifications will be logged, not sent")
	}
	return nil
}

// loadLocation resolves the configured zone. Blank means UTC.
func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time_zone %q: %w", name, err)
	}
	return loc, nil
}
