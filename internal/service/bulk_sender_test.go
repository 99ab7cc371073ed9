package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/mailtemplate"
	"github.com/kursadbilgin/mailrunner/internal/provider"
	"github.com/kursadbilgin/mailrunner/internal/queue"
	"github.com/kursadbilgin/mailrunner/internal/repository"
	"go.uber.org/zap"
)

var testTemplate = mailtemplate.Parse("SUBJECT: Hello $name\nHi $first_name, your code is $code.", false)

func newTestBulkSender(t *testing.T, dialer provider.Dialer, policy RetryPolicy) (*BulkSender, *[]time.Duration) {
	t.Helper()

	var waits []time.Duration
	engine := newTestEngine(&waits)

	sender, err := NewBulkSender(dialer, engine, policy, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBulkSender() error = %v", err)
	}
	sender.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	sender.newID = func() string { return "run-1" }

	var interWaits []time.Duration
	sender.sleep = func(ctx context.Context, d time.Duration) error {
		interWaits = append(interWaits, d)
		return ctx.Err()
	}
	return sender, &interWaits
}

func recipients(emails ...string) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(emails))
	for _, email := range emails {
		out = append(out, domain.Recipient{Email: email, Name: "User " + email, Fields: map[string]string{"code": email[:1]}})
	}
	return out
}

func TestBulkSenderPreservesOrder(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	dialer := &fakeDialer{session: session}
	sender, interWaits := newTestBulkSender(t, dialer, RetryPolicy{MaxAttempts: 3})

	input := recipients("a@example.com", "b@example.com", "c@example.com")
	report, err := sender.SendBulk(context.Background(), input, testTemplate, 2*time.Second)
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}

	if len(report.Results) != len(input) {
		t.Fatalf("results = %d, want %d", len(report.Results), len(input))
	}
	for i, result := range report.Results {
		if result.RecipientEmail != input[i].Email {
			t.Fatalf("result[%d] = %q, want %q", i, result.RecipientEmail, input[i].Email)
		}
		if !result.Success {
			t.Fatalf("result[%d] failed: %s", i, result.ErrorMessage)
		}
	}
	if len(report.Failures) != 0 {
		t.Fatalf("failures = %v, want none", report.Failures)
	}
	if report.Summary != (domain.RunSummary{Total: 3, Successful: 3}) {
		t.Fatalf("summary = %+v", report.Summary)
	}
	if report.RunID != "run-1" || report.Aborted {
		t.Fatalf("report = %+v", report)
	}

	if dialer.calls != 1 {
		t.Fatalf("dial calls = %d, want 1", dialer.calls)
	}
	if session.closed != 1 {
		t.Fatalf("session closed %d times, want 1", session.closed)
	}
	if len(*interWaits) != 2 {
		t.Fatalf("inter-message waits = %v, want 2 (none after the last)", *interWaits)
	}
	for _, wait := range *interWaits {
		if wait != 2*time.Second {
			t.Fatalf("inter-message wait = %v, want 2s", wait)
		}
	}
}

func TestBulkSenderRendersPerRecipient(t *testing.T) {
	t.Parallel()

	var sent []domain.Message
	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			sent = append(sent, m)
			return nil
		},
	}
	sender, _ := newTestBulkSender(t, &fakeDialer{session: session}, RetryPolicy{MaxAttempts: 1})

	input := []domain.Recipient{
		{Email: "ada@example.com", Name: "Ada Lovelace", Fields: map[string]string{"code": "A1"}},
		{Email: "x@example.com", Subject: "Special $first_name", Fields: map[string]string{"code": "X9"}},
	}
	if _, err := sender.SendBulk(context.Background(), input, testTemplate, 0); err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}

	if len(sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(sent))
	}
	if sent[0].Subject != "Hello Ada Lovelace" || sent[0].Body != "Hi Ada, your code is A1." {
		t.Fatalf("first message = %+v", sent[0])
	}
	if sent[1].Subject != "Special Valued Customer" || sent[1].Body != "Hi Valued Customer, your code is X9." {
		t.Fatalf("second message = %+v", sent[1])
	}
}

func TestBulkSenderNeverSucceedingRecipient(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			if r.Email == "b@example.com" {
				return errors.New("refused")
			}
			return nil
		},
	}
	sender, _ := newTestBulkSender(t, &fakeDialer{session: session}, RetryPolicy{MaxAttempts: 2})

	report, err := sender.SendBulk(context.Background(), recipients("a@example.com", "b@example.com", "c@example.com"), testTemplate, 0)
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(report.Failures))
	}
	failure := report.Failures[0]
	if failure.Email != "b@example.com" || failure.Error != "refused" || failure.Name != "User b@example.com" {
		t.Fatalf("failure = %+v", failure)
	}
	if report.Results[1].Success || report.Results[1].Attempts != 2 {
		t.Fatalf("result = %+v", report.Results[1])
	}
	for _, result := range report.Results {
		if result.Success == (result.RecipientEmail == "b@example.com") {
			t.Fatalf("unexpected success flag for %+v", result)
		}
	}
	if report.Summary != (domain.RunSummary{Total: 3, Successful: 2, Failed: 1}) {
		t.Fatalf("summary = %+v", report.Summary)
	}
}

func TestBulkSenderSessionFailure(t *testing.T) {
	t.Parallel()

	var finishedStatus domain.RunStatus
	runs := &fakeRunRepo{
		finishFn: func(ctx context.Context, id string, status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) error {
			finishedStatus = status
			if runErr == nil {
				t.Fatal("aborted run must carry an error")
			}
			return nil
		},
	}
	dialer := &fakeDialer{err: errors.New("535 authentication failed")}
	sender, _ := newTestBulkSender(t, dialer, RetryPolicy{MaxAttempts: 3})
	sender.SetRunRepository(runs)

	report, err := sender.SendBulk(context.Background(), recipients("a@example.com"), testTemplate, 0)
	if !errors.Is(err, domain.ErrSessionFailed) {
		t.Fatalf("SendBulk() error = %v, want ErrSessionFailed", err)
	}
	if len(report.Results) != 0 || len(report.Failures) != 0 {
		t.Fatalf("report = %+v, want no results", report)
	}
	if !report.Aborted {
		t.Fatal("expected aborted report")
	}
	if finishedStatus != domain.RunStatusAborted {
		t.Fatalf("finished status = %q, want ABORTED", finishedStatus)
	}
}

func TestBulkSenderInvalidRecipientIsPerRecipientFailure(t *testing.T) {
	t.Parallel()

	var sentTo []string
	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			sentTo = append(sentTo, r.Email)
			return nil
		},
	}
	sender, interWaits := newTestBulkSender(t, &fakeDialer{session: session}, RetryPolicy{MaxAttempts: 3})

	input := []domain.Recipient{
		{Email: "a@example.com"},
		{Email: "", Name: "No Address"},
		{Email: "not-an-address"},
		{Email: "b@example.com"},
	}
	report, err := sender.SendBulk(context.Background(), input, testTemplate, time.Second)
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}

	if len(sentTo) != 2 {
		t.Fatalf("sent to %v, want only valid recipients", sentTo)
	}
	if len(report.Results) != 4 || len(report.Failures) != 2 {
		t.Fatalf("results = %d, failures = %d", len(report.Results), len(report.Failures))
	}
	invalid := report.Results[1]
	if invalid.Success || invalid.Attempts != 0 || invalid.RecipientName != "No Address" || invalid.ErrorMessage == "" {
		t.Fatalf("invalid result = %+v", invalid)
	}
	if len(*interWaits) != 1 {
		t.Fatalf("inter-message waits = %d, want 1", len(*interWaits))
	}
}

func TestBulkSenderCancellationReturnsPartialReport(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			if r.Email == "b@example.com" {
				cancel()
			}
			return nil
		},
	}
	sender, _ := newTestBulkSender(t, &fakeDialer{session: session}, RetryPolicy{MaxAttempts: 1})

	var finished []domain.RunStatus
	sender.SetRunRepository(&fakeRunRepo{
		finishFn: func(ctx context.Context, id string, status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) error {
			if ctx.Err() != nil {
				t.Fatal("finish must not use the canceled context")
			}
			finished = append(finished, status)
			return nil
		},
	})

	report, err := sender.SendBulk(ctx, recipients("a@example.com", "b@example.com", "c@example.com"), testTemplate, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SendBulk() error = %v, want context.Canceled", err)
	}
	if !report.Aborted {
		t.Fatal("expected aborted report")
	}
	if len(report.Results) != 2 || report.Summary.Total != 2 {
		t.Fatalf("results = %d, summary = %+v, want the two completed recipients", len(report.Results), report.Summary)
	}
	if session.closed != 1 {
		t.Fatalf("session closed %d times, want 1", session.closed)
	}
	if len(finished) != 1 || finished[0] != domain.RunStatusAborted {
		t.Fatalf("finished = %v, want [ABORTED]", finished)
	}
}

func TestBulkSenderPersistsAndPublishes(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		sendFn: func(ctx context.Context, r domain.Recipient, m domain.Message) error {
			if r.Email == "b@example.com" {
				return errors.New("mailbox full")
			}
			return nil
		},
	}
	sender, _ := newTestBulkSender(t, &fakeDialer{session: session}, RetryPolicy{MaxAttempts: 1})

	runs := &fakeRunRepo{}
	var finishedSummary domain.RunSummary
	runs.finishFn = func(ctx context.Context, id string, status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) error {
		if status != domain.RunStatusCompleted || runErr != nil {
			t.Fatalf("finish status = %q, err = %v", status, runErr)
		}
		finishedSummary = summary
		return nil
	}
	publisher := &fakeFailurePublisher{}
	sender.SetRunRepository(runs)
	sender.SetFailurePublisher(publisher)

	if _, err := sender.SendBulk(context.Background(), recipients("a@example.com", "b@example.com"), testTemplate, 0); err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}

	if len(runs.created) != 1 || runs.created[0].Status != domain.RunStatusRunning || runs.created[0].TotalRecipients != 2 {
		t.Fatalf("created runs = %+v", runs.created)
	}
	if len(runs.deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(runs.deliveries))
	}
	for i, delivery := range runs.deliveries {
		if delivery.Position != i || delivery.RunID != "run-1" {
			t.Fatalf("delivery[%d] = %+v", i, delivery)
		}
	}
	if runs.deliveries[0].ErrorMessage != nil {
		t.Fatal("successful delivery must not carry an error")
	}
	if msg := runs.deliveries[1].ErrorMessage; msg == nil || *msg != "mailbox full" {
		t.Fatalf("failed delivery error = %v", msg)
	}
	if finishedSummary != (domain.RunSummary{Total: 2, Successful: 1, Failed: 1}) {
		t.Fatalf("finished summary = %+v", finishedSummary)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("published = %d, want 1", len(publisher.messages))
	}
	if got := publisher.messages[0]; got.RunID != "run-1" || got.Email != "b@example.com" || got.Error != "mailbox full" {
		t.Fatalf("published message = %+v", got)
	}
}

func TestBulkSenderBackendErrorsDoNotAffectDelivery(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	sender, _ := newTestBulkSender(t, &fakeDialer{session: session}, RetryPolicy{MaxAttempts: 1})

	backendErr := errors.New("backend down")
	sender.SetRunRepository(&fakeRunRepo{
		createFn: func(ctx context.Context, run *domain.Run) error { return backendErr },
		appendFn: func(ctx context.Context, d *domain.Delivery) error { return backendErr },
		finishFn: func(ctx context.Context, id string, status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) error {
			return backendErr
		},
	})

	var limiterKeys []string
	sender.SetRateLimiter(&fakeRateLimiter{
		waitFn: func(ctx context.Context, key string) error {
			limiterKeys = append(limiterKeys, key)
			return backendErr
		},
	}, "smtp.example.com")

	report, err := sender.SendBulk(context.Background(), recipients("a@example.com", "b@example.com"), testTemplate, 0)
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}
	if report.Summary.Successful != 2 {
		t.Fatalf("summary = %+v, want 2 successful", report.Summary)
	}
	if len(limiterKeys) != 2 || limiterKeys[0] != "smtp.example.com" {
		t.Fatalf("limiter keys = %v", limiterKeys)
	}
}

func TestRunReportRecordKeepsFailuresConsistent(t *testing.T) {
	t.Parallel()

	report := &RunReport{}
	report.Record(domain.DeliveryResult{RecipientEmail: "a@example.com", Success: true})
	report.Record(domain.DeliveryResult{RecipientEmail: "b@example.com", RecipientName: "B", ErrorMessage: "x"})

	if len(report.Results) != 2 || len(report.Failures) != 1 {
		t.Fatalf("results = %d, failures = %d", len(report.Results), len(report.Failures))
	}
	if report.Failures[0] != (domain.FailureRecord{Email: "b@example.com", Name: "B", Error: "x"}) {
		t.Fatalf("failure = %+v", report.Failures[0])
	}
}

func TestNewBulkSenderValidation(t *testing.T) {
	t.Parallel()

	engine := NewDeliveryEngine(nil)
	if _, err := NewBulkSender(nil, engine, RetryPolicy{MaxAttempts: 1}, nil); err == nil {
		t.Fatal("expected error for nil dialer")
	}
	if _, err := NewBulkSender(&fakeDialer{}, nil, RetryPolicy{MaxAttempts: 1}, nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
	if _, err := NewBulkSender(&fakeDialer{}, engine, RetryPolicy{}, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

type fakeSession struct {
	sendFn  func(ctx context.Context, r domain.Recipient, m domain.Message) error
	closeFn func() error
	closed  int
}

func (f *fakeSession) Send(ctx context.Context, r domain.Recipient, m domain.Message) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, r, m)
	}
	return nil
}

func (f *fakeSession) Close() error {
	f.closed++
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeDialer struct {
	session provider.Session
	err     error
	calls   int
}

func (f *fakeDialer) Dial(ctx context.Context) (provider.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.session == nil {
		return &fakeSession{}, nil
	}
	return f.session, nil
}

type fakeRunRepo struct {
	createFn func(ctx context.Context, run *domain.Run) error
	appendFn func(ctx context.Context, d *domain.Delivery) error
	finishFn func(ctx context.Context, id string, status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) error
	getFn    func(ctx context.Context, id string) (*domain.Run, error)
	listFn   func(ctx context.Context, params repository.RunListParams) ([]domain.Run, int64, error)
	listDFn  func(ctx context.Context, runID string, failedOnly bool) ([]domain.Delivery, error)

	mu         sync.Mutex
	created    []domain.Run
	deliveries []domain.Delivery
}

func (f *fakeRunRepo) Create(ctx context.Context, run *domain.Run) error {
	f.mu.Lock()
	f.created = append(f.created, *run)
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, run)
	}
	return nil
}

func (f *fakeRunRepo) AppendDelivery(ctx context.Context, d *domain.Delivery) error {
	f.mu.Lock()
	f.deliveries = append(f.deliveries, *d)
	f.mu.Unlock()
	if f.appendFn != nil {
		return f.appendFn(ctx, d)
	}
	return nil
}

func (f *fakeRunRepo) Finish(ctx context.Context, id string, status domain.RunStatus, summary domain.RunSummary, runErr *string, finishedAt time.Time) error {
	if f.finishFn != nil {
		return f.finishFn(ctx, id, status, summary, runErr, finishedAt)
	}
	return nil
}

func (f *fakeRunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRunRepo) List(ctx context.Context, params repository.RunListParams) ([]domain.Run, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeRunRepo) ListDeliveries(ctx context.Context, runID string, failedOnly bool) ([]domain.Delivery, error) {
	if f.listDFn != nil {
		return f.listDFn(ctx, runID, failedOnly)
	}
	return nil, nil
}

type fakeFailurePublisher struct {
	publishFn func(ctx context.Context, msg queue.FailureMessage) error
	messages  []queue.FailureMessage
}

func (f *fakeFailurePublisher) PublishFailure(ctx context.Context, msg queue.FailureMessage) error {
	f.messages = append(f.messages, msg)
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakeFailurePublisher) Close() error {
	return nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
	waitFn  func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}
