package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/snapreel/clipstitch/internal/db"
	"github.com/snapreel/clipstitch/internal/intake"
	"github.com/snapreel/clipstitch/internal/models"
	"github.com/snapreel/clipstitch/internal/storage"
)

// JobStore is the job-record surface the handlers need. Satisfied by *db.DB;
// narrowed to an interface so handler tests can run against a fake.
type JobStore interface {
	CreateJob(ctx context.Context, record *models.JobRecord) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.JobRecord, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

// Enqueuer hands accepted jobs to the queue broker. Satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.ClipJob) error
}

// Intaker validates and persists a multipart submission. Satisfied by
// *intake.Service.
type Intaker interface {
	Intake(ctx context.Context, r *http.Request) (uuid.UUID, []models.MediaItem, error)
}

type Handler struct {
	jobs    JobStore
	queue   Enqueuer
	intake  Intaker
	storage *storage.Storage
}

func NewHandler(jobs JobStore, q Enqueuer, in Intaker, stor *storage.Storage) *Handler {
	return &Handler{
		jobs:    jobs,
		queue:   q,
		intake:  in,
		storage: stor,
	}
}

// CreateClip handles POST /api/create-clip: persist the uploads, record the
// job, enqueue it. The render itself happens asynchronously in the worker.
func (h *Handler) CreateClip(w http.ResponseWriter, r *http.Request) {
	sessionID, items, err := h.intake.Intake(r.Context(), r)
	if err != nil {
		var vErr *intake.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusInternalServerError, vErr.Reason)
			return
		}
		log.Printf("[API] Intake failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to process uploads")
		return
	}

	job := &models.ClipJob{
		ID:         uuid.New(),
		SessionID:  sessionID,
		MediaItems: items,
		CreatedAt:  time.Now().UTC(),
	}
	job.OutputPath = h.storage.OutputPath(job.ID)

	record := &models.JobRecord{
		ID:        job.ID,
		SessionID: sessionID,
		Status:    models.JobStatusQueued,
		ItemCount: len(items),
	}

	if err := h.jobs.CreateJob(r.Context(), record); err != nil {
		log.Printf("[API] Failed to create job record: %v", err)
		h.rejectSubmission(r.Context(), sessionID, uuid.Nil)
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		// Broker unreachable: the job must not exist at all.
		log.Printf("[API] Failed to enqueue job %s: %v", job.ID, err)
		h.rejectSubmission(r.Context(), sessionID, job.ID)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusOK, models.CreateClipResponse{
		Success:   true,
		JobID:     job.ID,
		SessionID: sessionID,
	})
}

// GetClip handles GET /api/create-clip?jobId=<id>: status poll while the job
// runs, one-shot artifact download once it completes.
func (h *Handler) GetClip(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.URL.Query().Get("jobId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	record, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if !errors.Is(err, db.ErrJobNotFound) {
			log.Printf("[API] Failed to look up job %s: %v", jobID, err)
		}
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	switch record.Status {
	case models.JobStatusQueued, models.JobStatusActive:
		respondJSON(w, http.StatusOK, models.JobStatusResponse{
			Status:   "processing",
			Progress: record.Progress,
		})

	case models.JobStatusFailed:
		errMsg := ""
		if record.ErrorMessage != nil {
			errMsg = *record.ErrorMessage
		}
		respondJSON(w, http.StatusOK, models.JobStatusResponse{
			Status: "failed",
			Error:  errMsg,
		})

	case models.JobStatusCompleted:
		h.streamArtifact(w, r, record)

	default:
		respondError(w, http.StatusNotFound, "Job not found")
	}
}

// streamArtifact serves the rendered clip exactly once: the file and the job
// record are deleted after the stream, so a repeat poll reports not found
// rather than stale data.
func (h *Handler) streamArtifact(w http.ResponseWriter, r *http.Request, record *models.JobRecord) {
	if record.OutputPath == nil {
		// Completed record with no artifact path is unrecoverable; drop it
		// instead of reporting not-found forever.
		_ = h.jobs.DeleteJob(r.Context(), record.ID)
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	file, err := os.Open(*record.OutputPath)
	if err != nil {
		// Retention window already reclaimed the artifact.
		_ = h.jobs.DeleteJob(r.Context(), record.ID)
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"clip_%s.mp4\"", record.ID))
	if record.FileSize != nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", *record.FileSize))
	}

	if _, err := io.Copy(w, file); err != nil {
		log.Printf("[API] Artifact stream for job %s interrupted: %v", record.ID, err)
	}

	if err := h.storage.Remove(*record.OutputPath); err != nil {
		log.Printf("[API] Failed to remove streamed artifact for job %s: %v", record.ID, err)
	}
	if err := h.jobs.DeleteJob(r.Context(), record.ID); err != nil {
		log.Printf("[API] Failed to delete job record %s: %v", record.ID, err)
	}
}

// rejectSubmission unwinds a half-created submission: temp uploads always,
// the job record when one was inserted.
func (h *Handler) rejectSubmission(ctx context.Context, sessionID, jobID uuid.UUID) {
	if err := h.storage.RemoveSession(sessionID); err != nil {
		log.Printf("[API] Failed to clean rejected session %s: %v", sessionID, err)
	}
	if jobID != uuid.Nil {
		if err := h.jobs.DeleteJob(ctx, jobID); err != nil {
			log.Printf("[API] Failed to delete rejected job %s: %v", jobID, err)
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
