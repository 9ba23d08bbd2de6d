package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "vidintel/0.1.0"

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func newNtfyService(endpoint string, timeout time.Duration) *ntfyService {
	return &ntfyService{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := formatMessage(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) Close() error { return nil }

// formatMessage renders an event for humans. Started and queued events are
// suppressed; they are only interesting to machine consumers.
func formatMessage(event Event, payload Payload) (message, bool) {
	subject := payload.str("title")
	if subject == "" {
		subject = payload.str("video_id")
	}
	jobType := payload.str("job_type")
	if jobType == "" {
		jobType = "job"
	}
	label := jobType
	if subject != "" {
		label = fmt.Sprintf("%s: %s", jobType, subject)
	}

	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("✅ Completed %s", label)
		if d := payload.str("duration"); d != "" {
			body += fmt.Sprintf(" in %s", d)
		}
		return message{
			title: "vidintel - Job Complete",
			body:  body,
			tags:  []string{"vidintel", jobType, "completed"},
		}, true
	case EventJobFailed:
		reason := payload.str("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "vidintel - Job Failed",
			body:     fmt.Sprintf("❌ %s failed: %s", label, reason),
			tags:     []string{"vidintel", "error", "alert"},
			priority: "high",
		}, true
	case EventJobCanceled:
		return message{
			title: "vidintel - Job Canceled",
			body:  fmt.Sprintf("Canceled %s", label),
			tags:  []string{"vidintel", jobType, "canceled"},
		}, true
	case EventJobReclaimed:
		return message{
			title: "vidintel - Job Reclaimed",
			body:  fmt.Sprintf("Requeued stale %s (job %s)", jobType, payload.str("job_id")),
			tags:  []string{"vidintel", "reclaim"},
		}, true
	case EventTest:
		return message{
			title:    "vidintel - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"vidintel", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
