package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/logging"
)

const userAgent = "Curator/0.1.0"

// Service defines the notification surface exposed to workflow components.
// Per-event-class toggles in the configuration decide which calls actually
// send anything.
type Service interface {
	NotifyQueueStarted(ctx context.Context, pending int) error
	NotifyScanCompleted(ctx context.Context, discovered int) error
	NotifyEnrichmentCompleted(ctx context.Context, title string, selected int) error
	NotifyChainCompleted(ctx context.Context, title string) error
	NotifyJobFailed(ctx context.Context, jobType string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		queueEvents:     cfg.Notifications.Queue,
		enrichmentEvent: cfg.Notifications.Enrichment,
		errorEvents:     cfg.Notifications.Errors,
		logger:          logger,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	queueEvents     bool
	enrichmentEvent bool
	errorEvents     bool
	logger          *slog.Logger
}

func (n *ntfyService) NotifyQueueStarted(ctx context.Context, pending int) error {
	if !n.queueEvents {
		return nil
	}
	data := payload{
		title:   "Curator - Queue Started",
		message: fmt.Sprintf("Started processing with %d pending jobs", pending),
		tags:    []string{"curator", "queue", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScanCompleted(ctx context.Context, discovered int) error {
	if !n.queueEvents {
		return nil
	}
	data := payload{
		title:   "Curator - Scan Complete",
		message: fmt.Sprintf("Library scan complete: %d entities discovered", discovered),
		tags:    []string{"curator", "scan", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEnrichmentCompleted(ctx context.Context, title string, selected int) error {
	if !n.enrichmentEvent {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Curator - Enriched",
		message: fmt.Sprintf("Artwork updated: %s (%d selected)", title, selected),
		tags:    []string{"curator", "enrich", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyChainCompleted(ctx context.Context, title string) error {
	if !n.enrichmentEvent {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:    "Curator - Complete",
		message:  fmt.Sprintf("Ready to browse: %s", title),
		tags:     []string{"curator", "workflow", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobType string, err error) error {
	if !n.errorEvents {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Job failed")
	if jobType = strings.TrimSpace(jobType); jobType != "" {
		builder.WriteString(" (")
		builder.WriteString(jobType)
		builder.WriteString(")")
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Curator - Error",
		message:  builder.String(),
		tags:     []string{"curator", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Curator - Test",
		message:  "Notification system test",
		tags:     []string{"curator", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

type noopService struct{}

func (noopService) NotifyQueueStarted(context.Context, int) error                { return nil }
func (noopService) NotifyScanCompleted(context.Context, int) error               { return nil }
func (noopService) NotifyEnrichmentCompleted(context.Context, string, int) error { return nil }
func (noopService) NotifyChainCompleted(context.Context, string) error           { return nil }
func (noopService) NotifyJobFailed(context.Context, string, error) error         { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
