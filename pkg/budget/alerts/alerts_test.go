package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/threshold"
)

type sentNotification struct {
	address  string
	budgetID string
	severity budget.Severity
}

// recordingNotifier records sends and fails for listed budgets.
type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	failOn map[string]bool
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(ctx context.Context, address string, data TemplateData, severity budget.Severity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[data.BudgetID] {
		return errors.New("transport unavailable")
	}
	r.sent = append(r.sent, sentNotification{address: address, budgetID: data.BudgetID, severity: severity})
	return nil
}

func event(owner, id string, severity budget.Severity, pct string) threshold.Event {
	return threshold.Event{
		BudgetID:    id,
		OwnerID:     owner,
		BudgetName:  "budget " + id,
		Scope:       budget.GlobalScope(),
		Period:      budget.PeriodMonthly,
		Action:      budget.ActionAlert,
		Severity:    severity,
		PercentUsed: decimal.RequireFromString(pct),
		SpendUSD:    decimal.RequireFromString(pct),
		LimitUSD:    decimal.NewFromInt(100),
		ResetAt:     time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDispatch_GroupsAndOrders(t *testing.T) {
	notifier := &recordingNotifier{}
	directory := StaticDirectory{"acct-1": "ops@example.com", "acct-2": "https://hooks.example.com/x"}
	d := NewDispatcher(notifier, directory)

	result := d.Dispatch(context.Background(), []threshold.Event{
		event("acct-1", "w", budget.SeverityWarning, "80"),
		event("acct-1", "x", budget.SeverityExceeded, "120"),
		event("acct-2", "c", budget.SeverityCritical, "92"),
		event("acct-1", "c1", budget.SeverityCritical, "91"),
	})

	if result.Sent != 4 || result.Failed != 0 || result.Skipped != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.AffectedOwners != 2 {
		t.Errorf("Expected 2 affected owners, got %d", result.AffectedOwners)
	}

	wantOrder := []string{"x", "c1", "w", "c"}
	if len(notifier.sent) != len(wantOrder) {
		t.Fatalf("Expected %d sends, got %d", len(wantOrder), len(notifier.sent))
	}
	for i, id := range wantOrder {
		if notifier.sent[i].budgetID != id {
			t.Errorf("Send %d: expected budget %s, got %s", i, id, notifier.sent[i].budgetID)
		}
	}
	if notifier.sent[0].address != "ops@example.com" {
		t.Errorf("Expected acct-1 address, got %s", notifier.sent[0].address)
	}
	if notifier.sent[1].severity != budget.SeverityCritical || notifier.sent[2].severity != budget.SeverityWarning {
		t.Error("Expected critical and warning to keep distinct severities")
	}
}

func TestDispatch_SkipsOwnersWithoutContact(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(notifier, StaticDirectory{"acct-1": "ops@example.com"})

	result := d.Dispatch(context.Background(), []threshold.Event{
		event("acct-1", "a", budget.SeverityExceeded, "100"),
		event("acct-unknown", "b", budget.SeverityExceeded, "100"),
		event("acct-unknown", "c", budget.SeverityWarning, "77"),
	})

	if result.Sent != 1 || result.Skipped != 2 || result.Failed != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestDispatch_FailuresDoNotAbort(t *testing.T) {
	notifier := &recordingNotifier{failOn: map[string]bool{"a": true}}
	d := NewDispatcher(notifier, StaticDirectory{"acct-1": "ops@example.com"})

	result := d.Dispatch(context.Background(), []threshold.Event{
		event("acct-1", "a", budget.SeverityExceeded, "100"),
		event("acct-1", "b", budget.SeverityExceeded, "110"),
	})

	if result.Sent != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 sent and 1 failed, got %+v", result)
	}
}

type brokenDirectory struct{}

func (brokenDirectory) ContactAddress(context.Context, string) (string, error) {
	return "", errors.New("identity service down")
}

func TestDispatch_DirectoryErrorCountsAsFailure(t *testing.T) {
	d := NewDispatcher(&recordingNotifier{}, brokenDirectory{})
	result := d.Dispatch(context.Background(), []threshold.Event{event("acct-1", "a", budget.SeverityWarning, "80")})
	if result.Failed != 1 {
		t.Errorf("Expected 1 failed, got %+v", result)
	}
}

func TestDispatch_RateLimitHonorsContext(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(notifier, StaticDirectory{"acct-1": "ops@example.com"}, WithRateLimit(0.001, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := d.Dispatch(ctx, []threshold.Event{
		event("acct-1", "a", budget.SeverityExceeded, "100"),
		event("acct-1", "b", budget.SeverityExceeded, "100"),
	})

	// The burst lets the first through; the second cannot get a token
	// before the deadline.
	if result.Sent != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 sent and 1 failed, got %+v", result)
	}
}

func TestRender(t *testing.T) {
	data := NewTemplateData(event("acct-1", "b-1", budget.SeverityCritical, "92.5"))
	subject, body, err := Render(data, budget.SeverityCritical)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(subject, "[CRITICAL]") {
		t.Errorf("Expected critical tier in subject, got %q", subject)
	}
	if !strings.Contains(body, "92.5%") || !strings.Contains(body, "$100.00") {
		t.Errorf("Unexpected body: %q", body)
	}

	warnSubject, _, _ := Render(data, budget.SeverityWarning)
	if warnSubject == subject {
		t.Error("Expected warning and critical subjects to differ")
	}
}

func TestSlackNotifier(t *testing.T) {
	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode failed: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(time.Second)
	err := n.Notify(context.Background(), server.URL, NewTemplateData(event("acct-1", "b-1", budget.SeverityExceeded, "120")), budget.SeverityExceeded)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if !strings.Contains(got.Text, "EXCEEDED") {
		t.Errorf("Expected tier in message, got %q", got.Text)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackNotifier(time.Second).Notify(context.Background(), server.URL, TemplateData{}, budget.SeverityWarning)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected 403 error, got %v", err)
	}
}

func TestSMTPNotifier(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	n := NewSMTPNotifier(SMTPConfig{Host: "mail.example.com", Port: 587, From: "alerts@example.com"})
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := n.Notify(context.Background(), "mailto:owner@example.com", NewTemplateData(event("acct-1", "b-1", budget.SeverityWarning, "80")), budget.SeverityWarning)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Errorf("Expected addr mail.example.com:587, got %s", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "owner@example.com" {
		t.Errorf("Expected recipient owner@example.com, got %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: [WARNING]") {
		t.Errorf("Expected warning subject, got %q", gotMsg)
	}
}

func TestSMTPNotifier_StripsHeaderInjection(t *testing.T) {
	var gotTo []string
	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 25, From: "alerts@example.com"})
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotTo = to
		return nil
	}

	if err := n.Notify(context.Background(), "a@example.com\r\nBcc: b@example.com", TemplateData{}, budget.SeverityWarning); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if strings.ContainsAny(gotTo[0], "\r\n") {
		t.Errorf("Expected CR/LF stripped, got %q", gotTo[0])
	}
}

func TestRouter(t *testing.T) {
	slack := &recordingNotifier{}
	email := &recordingNotifier{}
	logN := &recordingNotifier{}
	r := &Router{Slack: slack, Email: email, Log: logN}

	for _, addr := range []string{"https://hooks.slack.com/services/T/B/X", "ops@example.com", "mailto:a@b.c", "log:ops"} {
		if err := r.Notify(context.Background(), addr, TemplateData{}, budget.SeverityWarning); err != nil {
			t.Fatalf("Notify(%s) failed: %v", addr, err)
		}
	}
	if len(slack.sent) != 1 || len(email.sent) != 2 || len(logN.sent) != 1 {
		t.Errorf("Unexpected routing: slack=%d email=%d log=%d", len(slack.sent), len(email.sent), len(logN.sent))
	}

	if err := (&Router{}).Notify(context.Background(), "ops@example.com", TemplateData{}, budget.SeverityWarning); err == nil {
		t.Error("Expected error when transport is missing")
	}
}

func TestBreakerNotifier_OpensAfterFailures(t *testing.T) {
	inner := &recordingNotifier{failOn: map[string]bool{"b-1": true}}
	n := WithBreaker(inner, BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	data := TemplateData{BudgetID: "b-1"}
	for i := 0; i < 3; i++ {
		if err := n.Notify(context.Background(), "x", data, budget.SeverityWarning); err == nil {
			t.Fatal("Expected transport error")
		}
	}

	err := n.Notify(context.Background(), "x", data, budget.SeverityWarning)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected open breaker, got %v", err)
	}
	if n.State() != "open" {
		t.Errorf("Expected state open, got %s", n.State())
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier(nil).Notify(context.Background(), "log:ops", TemplateData{BudgetID: "b-1"}, budget.SeverityExceeded); err != nil {
		t.Errorf("Expected log notifier to succeed, got %v", err)
	}
}
