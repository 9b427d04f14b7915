package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mailroom/internal/config"
)

const userAgent = "Mailroom-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyFileFound(ctx context.Context, fileName, digest string) error
	NotifyDocumentAnalyzed(ctx context.Context, fileName, customer, total string) error
	NotifyComparisonReady(ctx context.Context, left, right, differences string) error
	NotifyDrainCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		found:       cfg.Notifications.Found,
		comparisons: cfg.Notifications.Comparisons,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	found       bool
	comparisons bool
	errors      bool
}

func (n *ntfyService) NotifyFileFound(ctx context.Context, fileName, digest string) error {
	if !n.found {
		return nil
	}
	fileName = strings.TrimSpace(fileName)
	message := fmt.Sprintf("📥 New file: %s", fileName)
	if short := shortDigest(digest); short != "" {
		message = fmt.Sprintf("%s\nsha256 %s", message, short)
	}
	return n.send(ctx, payload{
		title:   "Mailroom - New File",
		message: message,
		tags:    []string{"mailroom", "intake", "found"},
	})
}

func (n *ntfyService) NotifyDocumentAnalyzed(ctx context.Context, fileName, customer, total string) error {
	if !n.found {
		return nil
	}
	parts := []string{fmt.Sprintf("🧾 Invoice read: %s", strings.TrimSpace(fileName))}
	if customer = strings.TrimSpace(customer); customer != "" {
		parts = append(parts, "Customer: "+customer)
	}
	if total = strings.TrimSpace(total); total != "" {
		parts = append(parts, "Total: "+total)
	}
	return n.send(ctx, payload{
		title:   "Mailroom - Invoice Analyzed",
		message: strings.Join(parts, "\n"),
		tags:    []string{"mailroom", "invoice", "analyzed"},
	})
}

func (n *ntfyService) NotifyComparisonReady(ctx context.Context, left, right, differences string) error {
	if !n.comparisons {
		return nil
	}
	message := fmt.Sprintf("⚖️ Compared %s and %s", strings.TrimSpace(left), strings.TrimSpace(right))
	if differences = strings.TrimSpace(differences); differences != "" {
		message = fmt.Sprintf("%s\n%s", message, differences)
	}
	return n.send(ctx, payload{
		title:   "Mailroom - Comparison Ready",
		message: message,
		tags:    []string{"mailroom", "compare", "completed"},
	})
}

func (n *ntfyService) NotifyDrainCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.found || processed+failed == 0 {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()

	title := "Mailroom - Inbox Drained"
	message := fmt.Sprintf("Inbox drained: %d files processed in %s", processed, durationText)
	if failed > 0 {
		title = "Mailroom - Inbox Drained (with errors)"
		message = fmt.Sprintf("Inbox drained: %d succeeded, %d failed in %s", processed, failed, durationText)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"mailroom", "intake", "drained"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "Mailroom - Error",
		message:  builder.String(),
		tags:     []string{"mailroom", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Mailroom - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"mailroom", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

func shortDigest(digest string) string {
	digest = strings.TrimSpace(digest)
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

type noopService struct{}

func (noopService) NotifyFileFound(context.Context, string, string) error                { return nil }
func (noopService) NotifyDocumentAnalyzed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyComparisonReady(context.Context, string, string, string) error  { return nil }
func (noopService) NotifyDrainCompleted(context.Context, int, int, time.Duration) error  { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
