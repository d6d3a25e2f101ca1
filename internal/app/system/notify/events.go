package notify

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"github.com/dalemusser/gather/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	Icon  = "/icon-192.png"
	Badge = "/badge-72.png"

	replyPreviewLength    = 50
	questionPreviewLength = 100
)

// GroupURL is the page a group notification opens.
func GroupURL(groupID primitive.ObjectID) string {
	return "/group.html?id=" + groupID.Hex()
}

// truncate cuts s to n runes and marks the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func NewResponsePayload(groupID primitive.ObjectID, author string) Payload {
	return Payload{
		Title: "New Response in Group",
		Body:  author + " shared their thoughts",
		Icon:  Icon,
		Badge: Badge,
		URL:   GroupURL(groupID),
	}
}

func ResponseLikedPayload(groupID primitive.ObjectID, liker string) Payload {
	return Payload{
		Title: "Response Liked",
		Body:  liker + " liked your response",
		Icon:  Icon,
		Badge: Badge,
		URL:   GroupURL(groupID),
	}
}

func ReplyPayload(groupID primitive.ObjectID, replier, text string) Payload {
	return Payload{
		Title: "New Reply",
		Body:  replier + " replied: " + truncate(text, replyPreviewLength),
		Icon:  Icon,
		Badge: Badge,
		URL:   GroupURL(groupID),
	}
}

func NewQuestionPayload(text string) Payload {
	return Payload{
		Title: "New Daily Question",
		Body:  truncate(text, questionPreviewLength),
		Icon:  Icon,
		Badge: Badge,
		URL:   "/",
	}
}

// Events turns domain events into notifications delivered in the
// background. The triggering request does not wait; its cancellation does
// not stop delivery. Wait blocks until everything started so far settles.
type Events struct {
	n   *Notifier
	log *zap.Logger
	wg  sync.WaitGroup
}

func NewEvents(n *Notifier, logger *zap.Logger) *Events {
	return &Events{n: n, log: logger}
}

// ResponseCreated notifies the group, minus the author.
func (e *Events) ResponseCreated(ctx context.Context, r models.Response, authorName string) {
	p := NewResponsePayload(r.GroupID, authorName)
	e.goSend(ctx, "response_created", func(ctx context.Context) Report {
		return e.n.NotifyGroup(ctx, r.GroupID, p, r.UserID)
	})
}

// ResponseLiked notifies the response owner. Liking your own response is silent.
func (e *Events) ResponseLiked(ctx context.Context, r models.Response, likerID primitive.ObjectID, likerName string) {
	if likerID == r.UserID {
		return
	}
	p := ResponseLikedPayload(r.GroupID, likerName)
	e.goSend(ctx, "response_liked", func(ctx context.Context) Report {
		return e.n.NotifyUser(ctx, r.UserID, p)
	})
}

// ReplyAdded notifies the response owner. Replying to yourself is silent.
func (e *Events) ReplyAdded(ctx context.Context, r models.Response, reply models.Reply, replierName string) {
	if reply.UserID == r.UserID {
		return
	}
	p := ReplyPayload(r.GroupID, replierName, reply.Text)
	e.goSend(ctx, "reply_added", func(ctx context.Context) Report {
		return e.n.NotifyUser(ctx, r.UserID, p)
	})
}

// QuestionPublished notifies every subscriber.
func (e *Events) QuestionPublished(ctx context.Context, q models.Question) {
	p := NewQuestionPayload(q.Text)
	e.goSend(ctx, "question_published", func(ctx context.Context) Report {
		return e.n.NotifySubscribers(ctx, p)
	})
}

func (e *Events) goSend(parent context.Context, event string, send func(context.Context) Report) {
	ctx := context.WithoutCancel(parent)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, timeouts.Long())
		defer cancel()
		r := send(ctx)
		e.log.Debug("notification event handled",
			zap.String("event", event),
			zap.Int("attempted", r.Attempted),
			zap.Int("failed", r.Failed))
	}()
}

// Wait blocks until all background deliveries finish or ctx is done.
func (e *Events) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
