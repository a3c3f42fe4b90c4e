package render

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Prober reads media durations via ffprobe.
type Prober struct{}

func NewProber() *Prober {
	return &Prober{}
}

// Duration returns the file's intrinsic duration in seconds. It prefers the
// video stream's own duration and falls back to the container format's, since
// some containers report one but not the other.
func (p *Prober) Duration(_ context.Context, path string) (float64, error) {
	probe, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, errors.Wrap(err, "ffprobe failed")
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return 0, errors.Wrap(err, "failed to parse ffprobe output")
	}

	if streams, ok := data["streams"].([]interface{}); ok {
		for _, stream := range streams {
			s, ok := stream.(map[string]interface{})
			if !ok || s["codec_type"] != "video" {
				continue
			}
			if d := parseDurationField(s["duration"]); d > 0 {
				return d, nil
			}
		}
	}

	if format, ok := data["format"].(map[string]interface{}); ok {
		if d := parseDurationField(format["duration"]); d > 0 {
			return d, nil
		}
	}

	return 0, errors.New("could not determine media duration")
}

func parseDurationField(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return d
}
