package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkolbe/ontograph-go/internal/schema"
)

// fastPolicy keeps backoff delays negligible in tests.
func fastPolicy(maxRetries int) Policy {
	return Policy{Base: time.Millisecond, MaxRetries: maxRetries, Jitter: 0.1}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(3), "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	cause := errors.New("still down")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, cause
	})

	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() error = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("exhausted error should unwrap to the last cause")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %T, want *ExhaustedError", err)
	}
	// 3 retries on top of the initial attempt.
	if exhausted.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", exhausted.Attempts)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDoValidationErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, schema.NewValidationError("entity references undeclared class")
	})

	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Do() error = %v, want *ValidationError", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("validation error must not be reported as exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls)
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	cause := errors.New("invalid api key")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})

	if !errors.Is(err, cause) {
		t.Fatalf("Do() error = %v, want wrapped %v", err, cause)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls)
	}
}

func TestDoCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Do(ctx, Policy{Base: time.Minute, MaxRetries: 5}, "op", func(ctx context.Context) (int, error) {
		calls++
		cancel() // cancel while the first backoff delay is pending
		return 0, errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("cancellation must not be reported as exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (delay aborted)", calls)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Base != time.Second || p.MaxRetries != 3 || p.Jitter != 0.5 {
		t.Errorf("DefaultPolicy() = %+v, want 1s/3/0.5", p)
	}
}
