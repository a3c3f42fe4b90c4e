package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/snapreel/clipstitch/internal/models"
	"github.com/snapreel/clipstitch/internal/render"
	"github.com/snapreel/clipstitch/internal/result"
)

// JobStore is the job-record surface the pipeline writes to. Satisfied by
// *db.DB; narrowed to an interface so pipeline tests run without Postgres.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, percent float64) error
	UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error
	SetJobCompleted(ctx context.Context, id uuid.UUID, outputPath string, fileSize int64, durationSec float64) error
}

// Dequeuer pulls the next clip job from the broker. Satisfied by *queue.Queue.
type Dequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*models.ClipJob, error)
}

// Renderer executes a render plan. Satisfied by *render.Executor.
type Renderer interface {
	Render(ctx context.Context, plan *render.Plan, outputPath string, onProgress render.ProgressFn) error
}

// Worker pulls clip jobs from the queue and drives each one through the
// render pipeline. Jobs run in parallel across the pool; stages within one
// job are strictly sequential.
type Worker struct {
	db       JobStore
	queue    Dequeuer
	renderer Renderer
	results  *result.Manager
	fontPath string // Caption font asset (empty = captions disabled)
}

func New(jobs JobStore, q Dequeuer, renderer Renderer, results *result.Manager, fontPath string) *Worker {
	return &Worker{
		db:       jobs,
		queue:    q,
		renderer: renderer,
		results:  results,
		fontPath: fontPath,
	}
}

// Start runs the worker pool until ctx is cancelled. Each slot pulls one job
// at a time.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Error dequeuing: %v", err)
				}
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (session: %s, items: %d)", job.ID, job.SessionID, len(job.MediaItems))

			if err := w.processJob(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
				if dbErr := w.db.UpdateJobError(ctx, job.ID, err.Error()); dbErr != nil {
					log.Printf("Failed to record job error: %v", dbErr)
				}
			} else {
				log.Printf("Job %s completed successfully", job.ID)
			}
		}
	}
}

// processJob runs one job's pipeline: plan, execute, record the result.
// Failures are returned as values, never rethrown past the worker boundary —
// a panic in the pipeline is captured so one bad job cannot take down the
// pool. Temp inputs are cleaned up unconditionally in every terminal path.
func (w *Worker) processJob(ctx context.Context, job *models.ClipJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render pipeline panic: %v", r)
		}
	}()
	defer w.results.CleanupInputs(job.SessionID)

	if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusActive); err != nil {
		log.Printf("Failed to mark job %s active: %v", job.ID, err)
	}

	plan := render.BuildPlan(job.MediaItems, w.captionFont(job))

	if err := w.renderer.Render(ctx, plan, job.OutputPath, w.progressRecorder(ctx, job.ID)); err != nil {
		return err
	}

	fileSize, err := w.results.OutputSize(job.OutputPath)
	if err != nil {
		return err
	}

	if err := w.db.SetJobCompleted(ctx, job.ID, job.OutputPath, fileSize, plan.TotalDuration); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	w.results.Notify(job, fileSize)
	w.results.ScheduleOutputDeletion(job.ID, job.OutputPath)

	return nil
}

// progressRecorder persists the latest render percentage to the job record,
// throttled to one write per second so progress events never swamp the
// database. Write failures are ignored; progress is observability only.
func (w *Worker) progressRecorder(ctx context.Context, jobID uuid.UUID) render.ProgressFn {
	var lastWrite time.Time
	return func(percent float64) {
		if time.Since(lastWrite) < time.Second {
			return
		}
		lastWrite = time.Now()
		_ = w.db.UpdateJobProgress(ctx, jobID, percent)
	}
}

// captionFont returns the font path to use for this job's caption overlays,
// or "" when overlays must be skipped. A missing font asset degrades the job
// to caption-less rather than failing it.
func (w *Worker) captionFont(job *models.ClipJob) string {
	if w.fontPath == "" {
		return ""
	}

	hasCaption := false
	for _, item := range job.MediaItems {
		if item.CaptionText != "" {
			hasCaption = true
			break
		}
	}
	if !hasCaption {
		return w.fontPath
	}

	if _, err := os.Stat(w.fontPath); err != nil {
		log.Printf("Warning: caption font %s unavailable, rendering job %s without text overlays: %v",
			w.fontPath, job.ID, err)
		return ""
	}

	return w.fontPath
}
