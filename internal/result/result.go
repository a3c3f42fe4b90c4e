package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/snapreel/clipstitch/internal/models"
	"github.com/snapreel/clipstitch/internal/storage"
)

const webhookTimeout = 15 * time.Second

// Manager handles everything after a job reaches a terminal state: webhook
// notification, temp-input cleanup, and delayed output deletion.
type Manager struct {
	storage    *storage.Storage
	webhookURL string // empty disables notification
	retention  time.Duration
	client     *http.Client
}

func New(stor *storage.Storage, webhookURL string, retention time.Duration) *Manager {
	if webhookURL == "" {
		log.Println("[Result] WARNING: No WEBHOOK_URL configured, completion notifications disabled")
	}

	return &Manager{
		storage:    stor,
		webhookURL: webhookURL,
		retention:  retention,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

// Notify POSTs the completion payload to the configured webhook.
// Fire-and-forget: delivery failure is logged and never affects the job's
// terminal state.
func (m *Manager) Notify(job *models.ClipJob, fileSize int64) {
	if m.webhookURL == "" {
		return
	}

	payload := models.WebhookPayload{
		ClipPath:       job.OutputPath,
		SessionID:      job.SessionID,
		FileSize:       fileSize,
		Duration:       job.TotalDuration(),
		DateCreated:    time.Now().UTC(),
		MediaItemCount: len(job.MediaItems),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Result] Webhook payload marshal failed: %v", err)
		return
	}

	resp, err := m.client.Post(m.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Result] Webhook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[Result] Webhook returned status %d", resp.StatusCode)
		return
	}

	log.Printf("[Result] Webhook delivered for session %s", job.SessionID)
}

// CleanupInputs removes the job's session-scoped temp files. Runs on both
// success and failure paths; removal of an already-gone directory is a no-op
// so invoking it twice is safe.
func (m *Manager) CleanupInputs(sessionID uuid.UUID) {
	if err := m.storage.RemoveSession(sessionID); err != nil {
		// Orphaned temp files are degraded-but-safe, never a crash condition.
		log.Printf("[Result] Temp cleanup for session %s failed: %v", sessionID, err)
	}
}

// ScheduleOutputDeletion deletes the rendered artifact after the retention
// window. The download handler may have deleted it first; double deletion is
// tolerated as a no-op.
func (m *Manager) ScheduleOutputDeletion(jobID uuid.UUID, outputPath string) {
	time.AfterFunc(m.retention, func() {
		if err := m.storage.Remove(outputPath); err != nil {
			log.Printf("[Result] Retention cleanup for job %s failed: %v", jobID, err)
		} else {
			log.Printf("[Result] Retention window elapsed, removed output for job %s", jobID)
		}
	})
}

// OutputSize returns the rendered artifact's size in bytes.
func (m *Manager) OutputSize(outputPath string) (int64, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat output: %w", err)
	}
	return info.Size(), nil
}
