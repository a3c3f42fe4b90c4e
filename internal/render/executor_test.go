package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/snapreel/clipstitch/internal/models"
)

func TestParseProgressLine(t *testing.T) {
	cases := []struct {
		line    string
		seconds float64
		ok      bool
	}{
		{"out_time_us=4500000", 4.5, true},
		{"out_time_ms=4500000", 4.5, true}, // ffmpeg reports microseconds under both keys
		{"out_time_us=0", 0, true},
		{"out_time_us=-1", 0, false},
		{"frame=120", 0, false},
		{"progress=end", 0, false},
		{"garbage", 0, false},
		{"", 0, false},
	}

	for _, c := range cases {
		seconds, ok := parseProgressLine(c.line)
		if ok != c.ok || seconds != c.seconds {
			t.Errorf("parseProgressLine(%q) = (%v, %v), want (%v, %v)",
				c.line, seconds, ok, c.seconds, c.ok)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		seconds, total, want float64
	}{
		{5, 10, 50},
		{0, 10, 0},
		{12, 10, 100}, // encoder overshoot clamps
		{5, 0, 0},     // degenerate total
	}

	for _, c := range cases {
		if got := progressPercent(c.seconds, c.total); got != c.want {
			t.Errorf("progressPercent(%v, %v) = %v, want %v", c.seconds, c.total, got, c.want)
		}
	}
}

// writeFakeEncoder drops a shell script standing in for ffmpeg. The output
// path arrives as the last argument, matching Plan.Args.
func writeFakeEncoder(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	full := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(full), 0755); err != nil {
		t.Fatalf("failed to write fake encoder: %v", err)
	}
	return path
}

func testPlan() *Plan {
	return BuildPlan([]models.MediaItem{
		{SourcePath: "/tmp/in.jpg", Kind: models.MediaKindImage, DisplayDuration: 2},
	}, "")
}

func TestRenderSuccess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")

	e := NewExecutor(time.Minute)
	e.ffmpegPath = writeFakeEncoder(t, `for a in "$@"; do out=$a; done; echo data > "$out"`)

	if err := e.Render(context.Background(), testPlan(), out, nil); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestRenderEncoderError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")

	e := NewExecutor(time.Minute)
	e.ffmpegPath = writeFakeEncoder(t, `echo "Invalid data found when processing input" >&2; exit 1`)

	err := e.Render(context.Background(), testPlan(), out, nil)
	encErr, ok := err.(*EncoderError)
	if !ok {
		t.Fatalf("expected EncoderError, got %T: %v", err, err)
	}
	// Diagnostics pass through verbatim
	if !strings.Contains(encErr.Detail, "Invalid data found when processing input") {
		t.Errorf("expected engine diagnostic retained, got %q", encErr.Detail)
	}
	if encErr.Error() != encErr.Detail {
		t.Errorf("expected error message to be the diagnostic unmodified, got %q", encErr.Error())
	}
}

func TestRenderOutputMissing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")

	// Clean exit without producing the artifact
	e := NewExecutor(time.Minute)
	e.ffmpegPath = writeFakeEncoder(t, `exit 0`)

	err := e.Render(context.Background(), testPlan(), out, nil)
	if _, ok := err.(*OutputMissingError); !ok {
		t.Fatalf("expected OutputMissingError, got %T: %v", err, err)
	}
}

func TestRenderTimeout(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")

	e := NewExecutor(200 * time.Millisecond)
	e.ffmpegPath = writeFakeEncoder(t, `sleep 10`)

	start := time.Now()
	err := e.Render(context.Background(), testPlan(), out, nil)
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	// The subprocess must be dead, not merely abandoned
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout did not terminate subprocess promptly (took %v)", elapsed)
	}
}

func TestRenderCancelled(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")

	e := NewExecutor(time.Minute)
	e.ffmpegPath = writeFakeEncoder(t, `sleep 10`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := e.Render(ctx, testPlan(), out, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface, got %T: %v", err, err)
	}
	// Shutdown is not an encoder fault
	if _, ok := err.(*EncoderError); ok {
		t.Errorf("cancellation misreported as encoder failure: %v", err)
	}
}

func TestRenderReportsProgress(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")

	e := NewExecutor(time.Minute)
	e.ffmpegPath = writeFakeEncoder(t,
		`echo "out_time_us=1000000"; echo "out_time_us=2000000"; for a in "$@"; do o=$a; done; echo data > "$o"`)

	var last float64
	err := e.Render(context.Background(), testPlan(), out, func(percent float64) {
		last = percent
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if last != 100 {
		t.Errorf("expected final progress 100%% (2s of a 2s plan), got %v", last)
	}
}
