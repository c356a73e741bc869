package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

// SlackNotifier posts notifications to Slack incoming webhooks. The address
// is the webhook URL.
type SlackNotifier struct {
	client *http.Client
}

// NewSlackNotifier creates a Slack notifier with the given request timeout.
func NewSlackNotifier(timeout time.Duration) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{client: &http.Client{Timeout: timeout}}
}

type slackMessage struct {
	Text string `json:"text"`
}

// Name implements Notifier.
func (s *SlackNotifier) Name() string { return "slack" }

// Notify implements Notifier.
func (s *SlackNotifier) Notify(ctx context.Context, address string, data TemplateData, severity budget.Severity) error {
	subject, body, err := Render(data, severity)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(slackMessage{Text: fmt.Sprintf("*%s*\n```%s```", subject, body)})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.Inject(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
