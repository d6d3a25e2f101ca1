package questions_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/gather/internal/app/features/questions"
	questionstore "github.com/dalemusser/gather/internal/app/store/questions"
	"github.com/dalemusser/gather/internal/app/system/indexes"
	"github.com/dalemusser/gather/internal/domain/models"
	"github.com/dalemusser/gather/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) (*questions.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return questions.NewHandler(db, time.UTC, zap.NewNop()), db
}

func TestServeToday_StableWithinDay(t *testing.T) {
	h, _ := newHandler(t)

	var first, second models.Question
	rec := testutil.NewRecorder()
	h.ServeToday(rec, testutil.NewRequest("GET", "/api/questions/today"))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &first)

	rec = testutil.NewRecorder()
	h.ServeToday(rec, testutil.NewRequest("GET", "/api/questions/today"))
	rec.DecodeJSON(t, &second)

	if first.ID.IsZero() || first.ID != second.ID {
		t.Errorf("expected the same question twice, got %s and %s", first.ID.Hex(), second.ID.Hex())
	}
	if !first.Date.Equal(questionstore.DayStart(time.Now(), time.UTC)) {
		t.Errorf("date: got %v", first.Date)
	}
}

func TestHandleCreate(t *testing.T) {
	h, _ := newHandler(t)
	user := testutil.NewUser("alice")

	create := func(body map[string]string) *testutil.ResponseRecorder {
		rec := testutil.NewRecorder()
		h.HandleCreate(rec, testutil.NewJSONRequest("POST", "/api/questions", body, user))
		return rec
	}

	rec := create(map[string]string{"text": "Best meal this week?", "category": "family", "date": "2030-05-17"})
	rec.AssertStatus(t, http.StatusCreated)
	var out struct {
		Question models.Question `json:"question"`
	}
	rec.DecodeJSON(t, &out)
	want := time.Date(2030, 5, 17, 0, 0, 0, 0, time.UTC)
	if !out.Question.Date.Equal(want) || out.Question.Category != "family" || out.Question.CreatedBy != user.ID {
		t.Errorf("unexpected question %+v", out.Question)
	}

	create(map[string]string{"text": "Another?", "date": "2030-05-17T18:30:00Z"}).AssertStatus(t, http.StatusConflict)
	create(map[string]string{"text": "", "date": "2030-05-18"}).AssertStatus(t, http.StatusBadRequest)
	create(map[string]string{"text": "Q?", "category": "work", "date": "2030-05-18"}).AssertStatus(t, http.StatusBadRequest)
	create(map[string]string{"text": "Q?", "date": "next tuesday"}).AssertStatus(t, http.StatusBadRequest)
}

func TestServeHistory(t *testing.T) {
	h, db := newHandler(t)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	day := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < questionstore.HistoryLimit+2; i++ {
		fx.CreateQuestion(ctx, "Q", day.AddDate(0, 0, i))
	}

	rec := testutil.NewRecorder()
	h.ServeHistory(rec, testutil.NewRequest("GET", "/api/questions/history"))
	rec.AssertStatus(t, http.StatusOK)

	var out []models.Question
	rec.DecodeJSON(t, &out)
	if len(out) != questionstore.HistoryLimit {
		t.Fatalf("expected %d questions, got %d", questionstore.HistoryLimit, len(out))
	}
	if !out[0].Date.After(out[1].Date) {
		t.Error("expected newest first")
	}
}
