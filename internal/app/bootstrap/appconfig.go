// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (GATHER_*), configuration
// files, or command-line flags, loaded in LoadConfig. WAFFLE's CoreConfig
// covers the framework-level settings (ports, TLS, logging, CORS); this
// struct carries everything specific to Gather.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: gather-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Web push (VAPID). Both keys empty means notifications are logged, not sent.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string // mailto: address or https URL the push service can contact
	PushTTL         int    // seconds an undelivered push is kept by the push service

	// Daily question
	TimeZone              string // IANA zone calendar days are computed in
	DailyQuestionSchedule string // standard 5-field cron spec, evaluated in TimeZone

	// Housekeeping
	SubscriptionPruneSchedule string        // cron spec for deleting long-inactive push subscriptions
	SubscriptionRetention     time.Duration // how long an inactive subscription is kept

	// Activity polling
	ActivityWindow             time.Duration // look-back when a poll sends no watermark
	RateLimitActivityPerMinute int
	RateLimitAuthPerMinute     int

	// Account lockout after repeated bad passwords (threshold 0 disables)
	LoginLockoutThreshold int
	LoginLockoutWindow    time.Duration

	// Store timeouts (zero keeps the defaults)
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
	TimeoutPush   time.Duration

	// Audit logging destinations: all, db, log, off
	AuditLogAuth  string
	AuditLogGroup string
}
