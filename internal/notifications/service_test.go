package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailroom/internal/config"
	"mailroom/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyFileFound(context.Background(), "invoice.pdf", "abc"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
	calls    int
}

func newCaptureServer(t *testing.T) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.calls++
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		got.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "file found",
			send: func(s notifications.Service) error {
				return s.NotifyFileFound(context.Background(), "invoice.pdf", "0123456789abcdef")
			},
			expectTitle:   "Mailroom - New File",
			expectMessage: "📥 New file: invoice.pdf\nsha256 0123456789ab",
			expectTags:    "mailroom,intake,found",
		},
		{
			name: "document analyzed",
			send: func(s notifications.Service) error {
				return s.NotifyDocumentAnalyzed(context.Background(), "invoice.pdf", "Acme", "")
			},
			expectTitle:   "Mailroom - Invoice Analyzed",
			expectMessage: "🧾 Invoice read: invoice.pdf\nCustomer: Acme",
			expectTags:    "mailroom,invoice,analyzed",
		},
		{
			name: "comparison ready",
			send: func(s notifications.Service) error {
				return s.NotifyComparisonReady(context.Background(), "a.pdf", "b.pdf", "Totals differ.")
			},
			expectTitle:   "Mailroom - Comparison Ready",
			expectMessage: "⚖️ Compared a.pdf and b.pdf\nTotals differ.",
			expectTags:    "mailroom,compare,completed",
		},
		{
			name: "drain with failures",
			send: func(s notifications.Service) error {
				return s.NotifyDrainCompleted(context.Background(), 3, 1, 90*time.Second)
			},
			expectTitle:   "Mailroom - Inbox Drained (with errors)",
			expectMessage: "Inbox drained: 3 succeeded, 1 failed in 1m30s",
			expectTags:    "mailroom,intake,drained",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("ledger unreadable"), "intake")
			},
			expectTitle:    "Mailroom - Error",
			expectMessage:  "❌ Error with intake: ledger unreadable",
			expectTags:     "mailroom,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCaptureServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursSwitches(t *testing.T) {
	server, got := newCaptureServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Found = false
	cfg.Notifications.Comparisons = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	_ = svc.NotifyFileFound(ctx, "a.pdf", "abc")
	_ = svc.NotifyComparisonReady(ctx, "a.pdf", "b.pdf", "")
	_ = svc.NotifyError(ctx, errors.New("boom"), "")
	_ = svc.NotifyDrainCompleted(ctx, 1, 0, time.Second)
	if got.calls != 0 {
		t.Fatalf("expected suppressed events, got %d calls", got.calls)
	}

	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if got.calls != 1 || got.priority != "low" {
		t.Fatalf("test notification should always send, calls=%d priority=%q", got.calls, got.priority)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403")
	}
}
