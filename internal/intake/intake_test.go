package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/snapreel/clipstitch/internal/models"
	"github.com/snapreel/clipstitch/internal/storage"
)

type fakeProber struct {
	duration float64
	err      error
}

func (p *fakeProber) Duration(_ context.Context, _ string) (float64, error) {
	return p.duration, p.err
}

type slot struct {
	filename string
	kind     string
	duration string
	text     string
}

func newRequest(t *testing.T, slots []slot) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for i, s := range slots {
		part, err := writer.CreateFormFile(fmt.Sprintf("file%d", i), s.filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write([]byte("mediadata")); err != nil {
			t.Fatal(err)
		}
		writer.WriteField(fmt.Sprintf("type%d", i), s.kind)
		writer.WriteField(fmt.Sprintf("duration%d", i), s.duration)
		writer.WriteField(fmt.Sprintf("text%d", i), s.text)
	}
	writer.Close()

	req := httptest.NewRequest("POST", "/api/create-clip", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newService(t *testing.T, prober DurationProber) (*Service, *storage.Storage) {
	t.Helper()
	stor, err := storage.New(filepath.Join(t.TempDir(), "up"), filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	return New(stor, prober), stor
}

func TestIntakeRejectsEmptySubmission(t *testing.T) {
	svc, _ := newService(t, &fakeProber{})

	_, _, err := svc.Intake(context.Background(), newRequest(t, nil))

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for zero files, got %v", err)
	}
}

func TestIntakePersistsFilesInOrder(t *testing.T) {
	svc, _ := newService(t, &fakeProber{duration: 3})

	sessionID, items, err := svc.Intake(context.Background(), newRequest(t, []slot{
		{filename: "first.jpg", kind: "image", duration: "6", text: "one"},
		{filename: "second.mp4", kind: "video", text: "two"},
	}))
	if err != nil {
		t.Fatalf("intake failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	for i, item := range items {
		data, err := os.ReadFile(item.SourcePath)
		if err != nil {
			t.Fatalf("item %d not persisted: %v", i, err)
		}
		if string(data) != "mediadata" {
			t.Errorf("item %d contents corrupted", i)
		}
		if !bytes.Contains([]byte(item.SourcePath), []byte(sessionID.String())) {
			t.Errorf("item %d not under session dir: %s", i, item.SourcePath)
		}
	}

	if items[0].Kind != models.MediaKindImage || items[1].Kind != models.MediaKindVideo {
		t.Errorf("kinds out of order: %v, %v", items[0].Kind, items[1].Kind)
	}
	if items[0].CaptionText != "one" || items[1].CaptionText != "two" {
		t.Errorf("captions out of order: %q, %q", items[0].CaptionText, items[1].CaptionText)
	}
	if items[0].DisplayDuration != 6 {
		t.Errorf("expected image duration 6, got %v", items[0].DisplayDuration)
	}
	if items[1].DisplayDuration != 3 {
		t.Errorf("expected probed video duration 3, got %v", items[1].DisplayDuration)
	}
}

func TestIntakeVideoDurationFallback(t *testing.T) {
	svc, _ := newService(t, &fakeProber{err: errors.New("unreadable")})

	_, items, err := svc.Intake(context.Background(), newRequest(t, []slot{
		{filename: "broken.mp4", kind: "video"},
	}))
	if err != nil {
		t.Fatalf("unreadable duration must not fail intake: %v", err)
	}

	if items[0].DisplayDuration != models.FallbackVideoDuration {
		t.Errorf("expected fallback duration %v, got %v",
			models.FallbackVideoDuration, items[0].DisplayDuration)
	}
}

func TestIntakeIgnoresSlotsBeyondLimit(t *testing.T) {
	svc, _ := newService(t, &fakeProber{duration: 2})

	slots := make([]slot, 7)
	for i := range slots {
		slots[i] = slot{filename: fmt.Sprintf("img%d.jpg", i), kind: "image"}
	}

	_, items, err := svc.Intake(context.Background(), newRequest(t, slots))
	if err != nil {
		t.Fatalf("intake failed: %v", err)
	}
	if len(items) != models.MaxMediaItems {
		t.Errorf("expected %d items, got %d", models.MaxMediaItems, len(items))
	}
}

func TestParseImageDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"", models.DefaultImageDuration},
		{"notanumber", models.DefaultImageDuration},
		{"-3", models.DefaultImageDuration},
		{"0", models.DefaultImageDuration},
		{"NaN", models.DefaultImageDuration},
		{"+Inf", models.DefaultImageDuration},
		{"0.5", models.MinImageDuration},
		{"25", models.MaxImageDuration},
		{"7.5", 7.5},
	}

	for _, c := range cases {
		if got := parseImageDuration(c.raw); got != c.want {
			t.Errorf("parseImageDuration(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}
