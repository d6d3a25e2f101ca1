// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/gather/internal/domain/models"
	"go.uber.org/zap"
)

const (
	DailyQuestionJobName      = "daily-question"
	PruneSubscriptionsJobName = "prune-subscriptions"
)

// TodayQuestion returns today's question, creating it when missing.
type TodayQuestion interface {
	Today(ctx context.Context) (models.Question, bool, error)
}

// QuestionPublisher announces a new question to subscribers.
type QuestionPublisher interface {
	QuestionPublished(ctx context.Context, q models.Question)
}

// DailyQuestionJob makes sure today's question exists and announces it to
// every subscriber. The question may have been scheduled ahead of time or
// created by an earlier request; either way it is announced once per run.
func DailyQuestionJob(questions TodayQuestion, pub QuestionPublisher, spec string, logger *zap.Logger) Job {
	return Job{
		Name: DailyQuestionJobName,
		Spec: spec,
		Run: func(ctx context.Context) error {
			q, created, err := questions.Today(ctx)
			if err != nil {
				return err
			}
			logger.Info("announcing daily question",
				zap.String("question_id", q.ID.Hex()),
				zap.Time("date", q.Date),
				zap.Bool("created", created))
			pub.QuestionPublished(ctx, q)
			return nil
		},
	}
}

// SubscriptionPruner deletes subscriptions deactivated before a cutoff.
type SubscriptionPruner interface {
	PruneInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneSubscriptionsJob removes push subscriptions that have been inactive
// for longer than retention.
func PruneSubscriptionsJob(subs SubscriptionPruner, retention time.Duration, spec string, logger *zap.Logger) Job {
	return Job{
		Name: PruneSubscriptionsJobName,
		Spec: spec,
		Run: func(ctx context.Context) error {
			n, err := subs.PruneInactive(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("pruned inactive push subscriptions",
					zap.Int64("count", n),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}
