package intake

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/snapreel/clipstitch/internal/models"
	"github.com/snapreel/clipstitch/internal/storage"
)

// Uploads larger than this are rejected by the multipart parser.
const maxUploadBytes = 256 << 20

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// DurationProber reads a media file's intrinsic duration in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Service turns a multipart submission into persisted files plus an ordered
// MediaItem list. Files are written synchronously before return; this is the
// hand-off boundary to the queue.
type Service struct {
	storage *storage.Storage
	prober  DurationProber
}

func New(stor *storage.Storage, prober DurationProber) *Service {
	return &Service{
		storage: stor,
		prober:  prober,
	}
}

// Intake parses the request's file{i}/type{i}/duration{i}/text{i} slots in
// order, persists each upload under a fresh session, and resolves every
// item's display duration. On any failure the session directory is removed
// so a rejected submission leaves no orphans.
func (s *Service) Intake(ctx context.Context, r *http.Request) (uuid.UUID, []models.MediaItem, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return uuid.Nil, nil, &ValidationError{Reason: "Invalid multipart form"}
	}

	sessionID := uuid.New()

	items, err := s.persistSlots(ctx, sessionID, r)
	if err != nil {
		if cleanupErr := s.storage.RemoveSession(sessionID); cleanupErr != nil {
			log.Printf("[Intake] Cleanup of rejected session %s failed: %v", sessionID, cleanupErr)
		}
		return uuid.Nil, nil, err
	}

	return sessionID, items, nil
}

func (s *Service) persistSlots(ctx context.Context, sessionID uuid.UUID, r *http.Request) ([]models.MediaItem, error) {
	var items []models.MediaItem

	for i := 0; i < models.MaxMediaItems; i++ {
		headers := r.MultipartForm.File[fmt.Sprintf("file%d", i)]
		if len(headers) == 0 {
			continue
		}
		header := headers[0]

		file, err := header.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open upload slot %d", i)
		}

		path, err := s.storage.SaveUpload(sessionID, i, header.Filename, file)
		file.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to persist upload slot %d", i)
		}

		kind := models.MediaKindImage
		if r.FormValue(fmt.Sprintf("type%d", i)) == string(models.MediaKindVideo) {
			kind = models.MediaKindVideo
		}

		items = append(items, models.MediaItem{
			SourcePath:      path,
			Kind:            kind,
			CaptionText:     r.FormValue(fmt.Sprintf("text%d", i)),
			DisplayDuration: parseImageDuration(r.FormValue(fmt.Sprintf("duration%d", i))),
		})
	}

	if len(items) == 0 {
		return nil, &ValidationError{Reason: "No media files uploaded"}
	}

	if err := s.resolveVideoDurations(ctx, items); err != nil {
		return nil, err
	}

	return items, nil
}

// resolveVideoDurations probes every video item's intrinsic duration
// concurrently. An unreadable duration falls back to the default rather than
// failing the submission.
func (s *Service) resolveVideoDurations(ctx context.Context, items []models.MediaItem) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range items {
		if items[i].Kind != models.MediaKindVideo {
			continue
		}

		item := &items[i]
		g.Go(func() error {
			duration, err := s.prober.Duration(gctx, item.SourcePath)
			if err != nil || duration <= 0 {
				log.Printf("[Intake] Could not read video duration for %s, using %.0fs fallback: %v",
					item.SourcePath, models.FallbackVideoDuration, err)
				item.DisplayDuration = models.FallbackVideoDuration
				return nil
			}
			item.DisplayDuration = duration
			return nil
		})
	}

	return g.Wait()
}

// parseImageDuration resolves a user-selected image display duration.
// Absent or malformed values default to 4s; valid values are clamped to the
// 1-10s range the UI offers.
func parseImageDuration(raw string) float64 {
	if raw == "" {
		return models.DefaultImageDuration
	}

	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return models.DefaultImageDuration
	}

	if d < models.MinImageDuration {
		return models.MinImageDuration
	}
	if d > models.MaxImageDuration {
		return models.MaxImageDuration
	}
	return d
}
