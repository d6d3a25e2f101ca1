package tasks_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/gather/internal/app/system/metrics"
	"github.com/dalemusser/gather/internal/app/system/tasks"
	"github.com/dalemusser/gather/internal/domain/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 9 * * *", false},
		{"@daily", false},
		{"*/5 * * * *", false},
		{"0 0 9 * * *", true}, // seconds field is not accepted
		{"every morning", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := tasks.ValidateSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_AddRejectsBadJobs(t *testing.T) {
	s := tasks.NewScheduler(nil, zap.NewNop(), nil)
	noop := func(context.Context) error { return nil }

	if err := s.Add(tasks.Job{Name: "ok", Spec: "@hourly", Run: noop}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add(tasks.Job{Name: "ok", Spec: "@hourly", Run: noop}); err == nil {
		t.Error("expected duplicate name to be rejected")
	}
	if err := s.Add(tasks.Job{Name: "bad", Spec: "nope", Run: noop}); err == nil {
		t.Error("expected bad schedule to be rejected")
	}
	if err := s.Add(tasks.Job{Spec: "@hourly", Run: noop}); err == nil {
		t.Error("expected missing name to be rejected")
	}
}

func TestScheduler_RunNowRecordsMetrics(t *testing.T) {
	m := metrics.New()
	s := tasks.NewScheduler(time.UTC, zap.NewNop(), m)

	boom := errors.New("boom")
	calls := 0
	if err := s.Add(tasks.Job{Name: "flaky", Spec: "@daily", Run: func(ctx context.Context) error {
		calls++
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected job context to carry a deadline")
		}
		if calls == 2 {
			return boom
		}
		return nil
	}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := s.RunNow(context.Background(), "flaky"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := s.RunNow(context.Background(), "flaky"); !errors.Is(err, boom) {
		t.Fatalf("second run: got %v, want boom", err)
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("expected unknown job error")
	}

	expected := `
# HELP gather_jobs_runs_total Scheduled job runs.
# TYPE gather_jobs_runs_total counter
gather_jobs_runs_total{job="flaky",success="false"} 1
gather_jobs_runs_total{job="flaky",success="true"} 1
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "gather_jobs_runs_total"); err != nil {
		t.Error(err)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := tasks.NewScheduler(time.UTC, zap.NewNop(), nil)
	if err := s.Add(tasks.Job{Name: "idle", Spec: "@yearly", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

type fakeQuestions struct {
	q       models.Question
	created bool
	err     error
}

func (f fakeQuestions) Today(context.Context) (models.Question, bool, error) {
	return f.q, f.created, f.err
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []models.Question
}

func (p *recordingPublisher) QuestionPublished(_ context.Context, q models.Question) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, q)
}

func TestDailyQuestionJob(t *testing.T) {
	q := models.Question{ID: primitive.NewObjectID(), Text: "What made you laugh today?"}

	t.Run("announces today's question", func(t *testing.T) {
		pub := &recordingPublisher{}
		job := tasks.DailyQuestionJob(fakeQuestions{q: q, created: true}, pub, "0 9 * * *", zap.NewNop())

		if job.Name != tasks.DailyQuestionJobName || job.Spec != "0 9 * * *" {
			t.Errorf("unexpected job %q %q", job.Name, job.Spec)
		}
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(pub.published) != 1 || pub.published[0].ID != q.ID {
			t.Errorf("expected question to be published once, got %v", pub.published)
		}
	})

	t.Run("announces a pre-scheduled question", func(t *testing.T) {
		pub := &recordingPublisher{}
		job := tasks.DailyQuestionJob(fakeQuestions{q: q}, pub, "@daily", zap.NewNop())
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(pub.published) != 1 {
			t.Errorf("expected 1 announcement, got %d", len(pub.published))
		}
	})

	t.Run("lookup failure publishes nothing", func(t *testing.T) {
		pub := &recordingPublisher{}
		job := tasks.DailyQuestionJob(fakeQuestions{err: errors.New("db down")}, pub, "@daily", zap.NewNop())
		if err := job.Run(context.Background()); err == nil {
			t.Error("expected error")
		}
		if len(pub.published) != 0 {
			t.Errorf("expected no announcement, got %d", len(pub.published))
		}
	})
}

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (p *fakePruner) PruneInactive(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.n, p.err
}

func TestPruneSubscriptionsJob(t *testing.T) {
	p := &fakePruner{n: 3}
	job := tasks.PruneSubscriptionsJob(p, 30*24*time.Hour, "30 3 * * *", zap.NewNop())
	if job.Name != tasks.PruneSubscriptionsJobName {
		t.Errorf("name: got %q", job.Name)
	}

	before := time.Now()
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := before.Add(-30 * 24 * time.Hour)
	if d := p.cutoff.Sub(want); d < 0 || d > time.Second {
		t.Errorf("cutoff: got %v, want about %v", p.cutoff, want)
	}

	p.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Error("expected error")
	}
}
