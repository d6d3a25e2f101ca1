package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/gather/internal/app/system/timeouts"
	"go.uber.org/zap"
)

func TestDefaults(t *testing.T) {
	timeouts.Reset()
	if timeouts.Short() != timeouts.DefaultShort {
		t.Errorf("Short: got %v, want %v", timeouts.Short(), timeouts.DefaultShort)
	}
	if timeouts.Push() != timeouts.DefaultPush {
		t.Errorf("Push: got %v, want %v", timeouts.Push(), timeouts.DefaultPush)
	}
}

func TestConfigure_IgnoresZeroValues(t *testing.T) {
	t.Cleanup(timeouts.Reset)

	timeouts.Configure(timeouts.Config{Short: 7 * time.Second})

	if timeouts.Short() != 7*time.Second {
		t.Errorf("Short: got %v, want 7s", timeouts.Short())
	}
	if timeouts.Medium() != timeouts.DefaultMedium {
		t.Errorf("Medium should keep default, got %v", timeouts.Medium())
	}
	if got := timeouts.Current().Short; got != 7*time.Second {
		t.Errorf("Current().Short: got %v", got)
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	<-ctx.Done()
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", ctx.Err())
	}
}
