package confirm

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"OxVenta-Custody/internal/action"
	"OxVenta-Custody/internal/chain"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/observability/alerting"
	"OxVenta-Custody/internal/stage"
)

type stubRunner struct {
	confirmErr  error
	cancelErr   error
	progress    []string
	confirmed   []Job
	cancelled   []Job
	lastReport  action.Reporter
	confirmHash string
}

func (r *stubRunner) Confirm(_ context.Context, topic, userID string, report action.Reporter) (*action.Outcome, error) {
	r.confirmed = append(r.confirmed, Job{Topic: topic, UserUUID: userID, Verb: action.VerbConfirm})
	r.lastReport = report
	if r.confirmErr != nil {
		return nil, r.confirmErr
	}
	for _, msg := range r.progress {
		report.Progress(msg)
	}
	hash := r.confirmHash
	if hash == "" {
		hash = "0xabc"
	}
	return &action.Outcome{Result: &chain.TxResult{Hash: hash, BlockNumber: 7}}, nil
}

func (r *stubRunner) Cancel(_ context.Context, topic, userID string) error {
	r.cancelled = append(r.cancelled, Job{Topic: topic, UserUUID: userID, Verb: action.VerbCancel})
	return r.cancelErr
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	users    []string
}

func (n *recordingNotifier) Notify(_ context.Context, userID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	n.messages = append(n.messages, message)
	return nil
}

type recordingDispatcher struct {
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.events = append(d.events, event)
	return nil
}

func TestHandleConfirmForwardsProgress(t *testing.T) {
	runner := &stubRunner{progress: []string{"Transaction submitted: 0xabc", "Pending confirmation..."}}
	notifier := &recordingNotifier{}
	proc := NewProcessor(runner, NewMemoryQueue(1), notifier)

	job := Job{Topic: action.TopicCreateToken, UserUUID: "user-1", Verb: action.VerbConfirm}
	if err := proc.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(runner.confirmed) != 1 {
		t.Fatalf("confirm calls = %d, want 1", len(runner.confirmed))
	}
	if len(notifier.messages) != 2 {
		t.Fatalf("messages = %v, want 2 progress lines", notifier.messages)
	}
	if notifier.messages[0] != "Transaction submitted: 0xabc" {
		t.Fatalf("first message = %q", notifier.messages[0])
	}
	for _, user := range notifier.users {
		if user != "user-1" {
			t.Fatalf("message delivered to %q", user)
		}
	}
}

func TestHandleConfirmFailureIsTerminal(t *testing.T) {
	runner := &stubRunner{
		confirmErr: xerrors.New(action.CodeInsufficientBalance, "余额不足",
			xerrors.WithMetadata("required", "2000"),
			xerrors.WithMetadata("available", "1000")),
	}
	notifier := &recordingNotifier{}
	dispatcher := &recordingDispatcher{}
	proc := NewProcessor(runner, NewMemoryQueue(1), notifier, WithAlertDispatcher(dispatcher))

	job := Job{Topic: action.TopicCreateToken, UserUUID: "user-1", Verb: action.VerbConfirm}
	if err := proc.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle must swallow execution errors, got %v", err)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("messages = %v, want single failure notice", notifier.messages)
	}
	msg := notifier.messages[0]
	if !strings.Contains(msg, "2000") || !strings.Contains(msg, "1000") {
		t.Fatalf("message %q should carry required and available amounts", msg)
	}
	if len(dispatcher.events) != 0 {
		t.Fatalf("insufficient balance is a user-level rejection, got alerts %v", dispatcher.events)
	}
}

func TestHandleConfirmTimeoutAlertsAndWarnsUser(t *testing.T) {
	runner := &stubRunner{
		confirmErr: xerrors.New(chain.CodeReceiptTimeout, "超时未观察到交易回执",
			xerrors.WithMetadata("tx_hash", "0xdead"),
			xerrors.WithMetadata("explorer", "https://scan.example/tx/0xdead")),
	}
	notifier := &recordingNotifier{}
	dispatcher := &recordingDispatcher{}
	proc := NewProcessor(runner, NewMemoryQueue(1), notifier, WithAlertDispatcher(dispatcher))

	job := Job{Topic: action.TopicAddLiquidityETH, UserUUID: "user-2", Verb: action.VerbConfirm}
	if err := proc.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("messages = %v", notifier.messages)
	}
	msg := notifier.messages[0]
	if !strings.Contains(msg, "unknown") || !strings.Contains(msg, "https://scan.example/tx/0xdead") {
		t.Fatalf("timeout message %q must say the outcome is unknown and link the explorer", msg)
	}
	if strings.Contains(strings.ToLower(msg), "resend") || strings.Contains(strings.ToLower(msg), "retry") {
		t.Fatalf("timeout message %q must not invite a resend", msg)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("alerts = %d, want 1", len(dispatcher.events))
	}
	event := dispatcher.events[0]
	if event.Code != chain.CodeReceiptTimeout || event.TxHash != "0xdead" {
		t.Fatalf("alert event = %+v", event)
	}
}

func TestHandleConfirmStageExpired(t *testing.T) {
	runner := &stubRunner{confirmErr: stage.ErrStageExpired}
	notifier := &recordingNotifier{}
	proc := NewProcessor(runner, NewMemoryQueue(1), notifier)

	job := Job{Topic: action.TopicCreatePair, UserUUID: "user-1", Verb: action.VerbConfirm}
	if err := proc.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "nothing staged") {
		t.Fatalf("messages = %v", notifier.messages)
	}
}

func TestHandleCancel(t *testing.T) {
	runner := &stubRunner{}
	notifier := &recordingNotifier{}
	proc := NewProcessor(runner, NewMemoryQueue(1), notifier)

	job := Job{Topic: action.TopicCreateToken, UserUUID: "user-1", Verb: action.VerbCancel}
	if err := proc.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(runner.cancelled) != 1 {
		t.Fatalf("cancel calls = %d, want 1", len(runner.cancelled))
	}
	if len(runner.confirmed) != 0 {
		t.Fatal("cancel must not reach the confirm path")
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "cancelled") {
		t.Fatalf("messages = %v", notifier.messages)
	}
}

func TestJobEncodeRoundTrip(t *testing.T) {
	job := Job{Topic: action.TopicCreatePair, UserUUID: "user-9", Verb: action.VerbConfirm}
	payload, err := job.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeJob(payload)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if decoded != job {
		t.Fatalf("round trip = %+v, want %+v", decoded, job)
	}
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	bad := []string{
		"",
		"not json",
		`{"topic":"","user_uuid":"u","verb":"confirm"}`,
		`{"topic":"create_token","user_uuid":"","verb":"confirm"}`,
		`{"topic":"create_token","user_uuid":"u","verb":"detonate"}`,
	}
	for _, payload := range bad {
		if _, err := DecodeJob(payload); err == nil {
			t.Errorf("DecodeJob(%q) should fail", payload)
		}
	}
}

func TestMemoryQueueDelivers(t *testing.T) {
	queue := NewMemoryQueue(4)
	defer queue.Close()

	received := make(chan Job, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = queue.Consume(ctx, 2, func(_ context.Context, job Job) error {
			select {
			case received <- job:
			default:
			}
			return nil
		})
	}()

	want := Job{Topic: action.TopicCreateToken, UserUUID: "user-1", Verb: action.VerbConfirm}
	if err := queue.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-received:
		if got != want {
			t.Fatalf("consumed %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not consumed")
	}
	cancel()
	<-done
}
