// Package alert posts a webhook when a check's status changes.
package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/runner"
)

// Alerter sends webhook notifications on check status transitions.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	lastAlert  map[string]time.Time
	mu         sync.Mutex
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// New creates a new Alerter. Pass nil logger to use the default logger.
func New(webhookURL string, cooldown time.Duration, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		lastAlert:  make(map[string]time.Time),
		logger:     logger,
	}
}

type webhookPayload struct {
	CheckID        string `json:"check_id"`
	RunID          string `json:"run_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
	Message        string `json:"message"`
	DurationMs     int64  `json:"duration_ms"`
	ExecutedAt     string `json:"executed_at"`
	Source         string `json:"source"`
}

// Notify sends a webhook if the check's status changed and the cooldown has
// elapsed. It matches the runner.Runner OnResult signature.
func (a *Alerter) Notify(o runner.Outcome, previous *check.Status) {
	// First run of a check has nothing to compare against.
	if previous == nil {
		return
	}
	if o.Result.Status == *previous {
		return
	}

	a.mu.Lock()
	last, exists := a.lastAlert[o.CheckID]
	if exists && time.Since(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", "check_id", o.CheckID)
		return
	}
	a.lastAlert[o.CheckID] = time.Now()
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.send(o, string(*previous))
	}()
}

// Wait blocks until in-flight webhooks finish.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) send(o runner.Outcome, prevStatus string) {
	payload := webhookPayload{
		CheckID:        o.CheckID,
		RunID:          o.RunID.String(),
		Status:         string(o.Result.Status),
		PreviousStatus: prevStatus,
		Message:        o.Result.Message,
		DurationMs:     o.Duration.Milliseconds(),
		ExecutedAt:     o.ExecutedAt.UTC().Format(time.RFC3339),
		Source:         "data-dash",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshaling webhook payload", "check_id", o.CheckID, "error", err)
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending webhook", "check_id", o.CheckID, "url", a.webhookURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook returned non-2xx status",
			"check_id", o.CheckID,
			"status", resp.StatusCode,
		)
	}
}
