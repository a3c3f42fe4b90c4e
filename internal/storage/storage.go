package storage

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage manages the two disk areas the pipeline touches: session-scoped
// upload directories under tempDir, and rendered clips under outputDir.
// Each job owns a disjoint session subtree, so concurrent jobs never contend
// on the same files.
type Storage struct {
	tempDir   string
	outputDir string
}

func New(tempDir, outputDir string) (*Storage, error) {
	for _, dir := range []string{tempDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}

	return &Storage{
		tempDir:   tempDir,
		outputDir: outputDir,
	}, nil
}

// SessionDir returns (and creates) the upload directory for one session.
func (s *Storage) SessionDir(sessionID uuid.UUID) (string, error) {
	dir := filepath.Join(s.tempDir, sessionID.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session dir: %w", err)
	}
	return dir, nil
}

// SaveUpload persists one uploaded file under the session directory with a
// collision-free name derived from the session, slot index, and original
// filename. Returns the absolute path of the persisted file.
func (s *Storage) SaveUpload(sessionID uuid.UUID, index int, originalName string, r io.Reader) (string, error) {
	dir, err := s.SessionDir(sessionID)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%d_%s", sessionID.String(), index, sanitizeFilename(originalName))
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	return path, nil
}

// OutputPath returns the destination for one job's rendered clip.
func (s *Storage) OutputPath(jobID uuid.UUID) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("clip_%s.mp4", jobID.String()))
}

// Remove deletes a file, tolerating an already-missing path. Cleanup runs on
// both the success and failure paths and may race with retention timers, so
// double deletion must be a no-op.
func (s *Storage) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// RemoveSession deletes a session's entire upload directory.
func (s *Storage) RemoveSession(sessionID uuid.UUID) error {
	dir := filepath.Join(s.tempDir, sessionID.String())
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove session dir: %w", err)
	}
	return nil
}

// SweepOutputs removes rendered clips older than maxAge. Run at startup so
// artifacts orphaned by a crash don't accumulate across restarts.
func (s *Storage) SweepOutputs(maxAge time.Duration) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		log.Printf("[Storage] Sweep skipped, cannot read output dir: %v", err)
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.outputDir, entry.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Printf("[Storage] Sweep could not remove %s: %v", path, err)
			} else {
				log.Printf("[Storage] Swept stale output %s", entry.Name())
			}
		}
	}
}

// sanitizeFilename strips path separators and other characters that would
// break the on-disk name or the ffmpeg command line.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	replacer := strings.NewReplacer(" ", "_", "'", "", "\"", "", ";", "", "|", "")
	name = replacer.Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	return name
}
