// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	groupstore "github.com/dalemusser/gather/internal/app/store/groups"
	questionstore "github.com/dalemusser/gather/internal/app/store/questions"
	subscriptionstore "github.com/dalemusser/gather/internal/app/store/subscriptions"
	"github.com/dalemusser/gather/internal/app/system/metrics"
	"github.com/dalemusser/gather/internal/app/system/notify"
	"github.com/dalemusser/gather/internal/app/system/tasks"
	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Services are the long-lived components shared by the HTTP handlers,
// the scheduler and shutdown.
type Services struct {
	Location  *time.Location
	Metrics   *metrics.Metrics
	Notifier  *notify.Notifier
	Events    *notify.Events
	Scheduler *tasks.Scheduler
	PushKey   string // VAPID public key handed to browsers; empty when push is off
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built: it
// applies timeouts, builds the notification pipeline and starts the
// scheduler.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
		Push:   appCfg.TimeoutPush,
	})

	loc, err := loadLocation(appCfg.TimeZone)
	if err != nil {
		return err
	}

	svc := deps.Services
	svc.Location = loc
	svc.Metrics = metrics.New()

	pusher, err := newPusher(appCfg, logger)
	if err != nil {
		return err
	}
	if wp, ok := pusher.(*notify.WebPush); ok {
		svc.PushKey = wp.PublicKey()
	}

	db := deps.MongoDatabase
	svc.Notifier = notify.New(subscriptionstore.New(db), groupstore.New(db), pusher, logger, svc.Metrics)
	svc.Events = notify.NewEvents(svc.Notifier, logger)

	svc.Scheduler = tasks.NewScheduler(loc, logger, svc.Metrics)
	jobs := []tasks.Job{
		tasks.DailyQuestionJob(questionstore.New(db, loc), svc.Events, appCfg.DailyQuestionSchedule, logger),
		tasks.PruneSubscriptionsJob(subscriptionstore.New(db), appCfg.SubscriptionRetention, appCfg.SubscriptionPruneSchedule, logger),
	}
	for _, job := range jobs {
		if err := svc.Scheduler.Add(job); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	svc.Scheduler.Start()

	logger.Info("gather started",
		zap.String("time_zone", loc.String()),
		zap.String("daily_question_schedule", appCfg.DailyQuestionSchedule),
		zap.Bool("push_enabled", svc.PushKey != ""))
	return nil
}

// newPusher returns a WebPush transport when VAPID keys are configured and
// a LogPusher otherwise.
func newPusher(appCfg AppConfig, logger *zap.Logger) (notify.Pusher, error) {
	if appCfg.VAPIDPublicKey == "" && appCfg.VAPIDPrivateKey == "" {
		return notify.LogPusher{Log: logger}, nil
	}
	wp, err := notify.NewWebPush(notify.WebPushConfig{
		PublicKey:  appCfg.VAPIDPublicKey,
		PrivateKey: appCfg.VAPIDPrivateKey,
		Subscriber: appCfg.VAPIDSubscriber,
		TTL:        appCfg.PushTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("configure web push: %w", err)
	}
	return wp, nil
}
