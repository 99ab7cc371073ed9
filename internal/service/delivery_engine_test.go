package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/provider"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEngine(waits *[]time.Duration) *DeliveryEngine {
	engine := NewDeliveryEngine(zap.NewNop())
	engine.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return engine
}

func TestDeliveryEngineSucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	engine := newTestEngine(&waits)

	calls := 0
	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			calls++
			if calls < 3 {
				return errors.New("temporary failure")
			}
			return nil
		},
	}

	result, err := engine.SendWithRetry(context.Background(), session,
		domain.Recipient{Email: "ada@example.com", Name: "Ada"},
		domain.Message{Subject: "s", Body: "b"},
		RetryPolicy{MaxAttempts: 3, Delay: 0},
	)
	if err != nil {
		t.Fatalf("SendWithRetry() error = %v", err)
	}

	if !result.Success {
		t.Fatalf("Success = false, want true (error=%q)", result.ErrorMessage)
	}
	if result.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", result.Attempts)
	}
	if result.ErrorMessage != "" {
		t.Fatalf("ErrorMessage = %q, want empty", result.ErrorMessage)
	}
	if len(waits) != 2 {
		t.Fatalf("waits = %v, want 2 waits", waits)
	}
	if result.RecipientName != "Ada" || result.Timestamp.IsZero() {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDeliveryEngineExhaustionKeepsLastError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		maxAttempts int
		errs        []error
		wantMessage string
	}{
		{
			name:        "always refused",
			maxAttempts: 2,
			errs:        []error{errors.New("refused"), errors.New("refused")},
			wantMessage: "refused",
		},
		{
			name:        "only last cause retained",
			maxAttempts: 3,
			errs:        []error{errors.New("first"), errors.New("second"), errors.New("third")},
			wantMessage: "third",
		},
		{
			name:        "classified cause keeps its prefix",
			maxAttempts: 1,
			errs:        []error{&provider.DeliveryError{Kind: provider.FailureRecipientRefused, Code: 550, Message: "550 no such user"}},
			wantMessage: "Recipient refused: 550 no such user",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var waits []time.Duration
			engine := newTestEngine(&waits)

			calls := 0
			session := &fakeSession{
				sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
					err := tc.errs[calls]
					calls++
					return err
				},
			}

			result, err := engine.SendWithRetry(context.Background(), session,
				domain.Recipient{Email: "bob@example.com"},
				domain.Message{Subject: "s", Body: "b"},
				RetryPolicy{MaxAttempts: tc.maxAttempts},
			)
			if err != nil {
				t.Fatalf("SendWithRetry() error = %v", err)
			}

			if result.Success {
				t.Fatal("Success = true, want false")
			}
			if result.ErrorMessage != tc.wantMessage {
				t.Fatalf("ErrorMessage = %q, want %q", result.ErrorMessage, tc.wantMessage)
			}
			if result.Attempts != tc.maxAttempts || calls != tc.maxAttempts {
				t.Fatalf("attempts = %d, calls = %d, want %d", result.Attempts, calls, tc.maxAttempts)
			}
			if len(waits) != tc.maxAttempts-1 {
				t.Fatalf("waits = %d, want %d", len(waits), tc.maxAttempts-1)
			}
			if result.RecipientName != domain.UnknownRecipientName {
				t.Fatalf("RecipientName = %q, want %q", result.RecipientName, domain.UnknownRecipientName)
			}
		})
	}
}

func TestDeliveryEngineWaitsConstantDelay(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	engine := newTestEngine(&waits)

	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			return errors.New("down")
		},
	}

	const delay = 250 * time.Millisecond
	_, err := engine.SendWithRetry(context.Background(), session,
		domain.Recipient{Email: "bob@example.com"},
		domain.Message{},
		RetryPolicy{MaxAttempts: 4, Delay: delay},
	)
	if err != nil {
		t.Fatalf("SendWithRetry() error = %v", err)
	}

	if len(waits) != 3 {
		t.Fatalf("waits = %v, want 3", waits)
	}
	for i, wait := range waits {
		if wait != delay {
			t.Fatalf("wait[%d] = %v, want %v", i, wait, delay)
		}
	}
}

func TestDeliveryEngineFirstAttemptSuccessDoesNotWait(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	engine := newTestEngine(&waits)

	result, err := engine.SendWithRetry(context.Background(), &fakeSession{},
		domain.Recipient{Email: "ada@example.com"},
		domain.Message{},
		RetryPolicy{MaxAttempts: 3, Delay: time.Second},
	)
	if err != nil {
		t.Fatalf("SendWithRetry() error = %v", err)
	}
	if !result.Success || result.Attempts != 1 || len(waits) != 0 {
		t.Fatalf("result = %+v, waits = %v", result, waits)
	}
}

func TestDeliveryEngineCanceledDuringWait(t *testing.T) {
	t.Parallel()

	engine := NewDeliveryEngine(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			calls++
			return errors.New("busy")
		},
	}

	result, err := engine.SendWithRetry(ctx, session,
		domain.Recipient{Email: "ada@example.com"},
		domain.Message{},
		RetryPolicy{MaxAttempts: 5, Delay: time.Minute},
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SendWithRetry() error = %v, want context.Canceled", err)
	}
	if result.Success || calls != 1 {
		t.Fatalf("result = %+v, calls = %d", result, calls)
	}
	if result.ErrorMessage != "busy" {
		t.Fatalf("ErrorMessage = %q, want %q", result.ErrorMessage, "busy")
	}
}

func TestDeliveryEngineRejectsInvalidPolicy(t *testing.T) {
	t.Parallel()

	engine := NewDeliveryEngine(nil)

	for _, policy := range []RetryPolicy{{MaxAttempts: 0}, {MaxAttempts: 1, Delay: -time.Second}} {
		_, err := engine.SendWithRetry(context.Background(), &fakeSession{}, domain.Recipient{Email: "a@example.com"}, domain.Message{}, policy)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("policy %+v: error = %v, want ErrValidation", policy, err)
		}
	}
}

func TestDeliveryEngineLogsEveryFailedAttempt(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	var waits []time.Duration
	engine := newTestEngine(&waits)
	engine.logger = zap.New(core)

	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			return &provider.DeliveryError{Kind: provider.FailureDataRejected, Code: 554}
		},
	}

	_, err := engine.SendWithRetry(context.Background(), session,
		domain.Recipient{Email: "ada@example.com"},
		domain.Message{},
		RetryPolicy{MaxAttempts: 3},
	)
	if err != nil {
		t.Fatalf("SendWithRetry() error = %v", err)
	}

	attempts := logs.FilterMessage("delivery attempt failed").All()
	if len(attempts) != 3 {
		t.Fatalf("attempt logs = %d, want 3", len(attempts))
	}
	if kind := attempts[0].ContextMap()["kind"]; kind != "data_rejected" {
		t.Fatalf("kind = %v, want data_rejected", kind)
	}
	if got := logs.FilterMessage("delivery failed after all attempts").Len(); got != 1 {
		t.Fatalf("exhaustion logs = %d, want 1", got)
	}
}
