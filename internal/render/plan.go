package render

import (
	"fmt"
	"strings"

	"github.com/snapreel/clipstitch/internal/models"
)

// Output / rendering constants — 720p landscape at 30fps, video only
const (
	outputWidth  = 1280
	outputHeight = 720
	videoFPS     = 30

	// Symmetric fade-in/fade-out length per item. Clamped to half the item's
	// display duration so the two fades never overlap.
	fadeDuration = 0.5

	captionFontSize     = 48
	captionBoxOpacity   = 0.5
	captionBoxBorder    = 12
	captionBottomMargin = 40
)

// Input describes one ffmpeg input with its per-input flags. Images are
// looped so a single frame yields a stream of the requested length.
type Input struct {
	Args []string
	Path string
}

// Plan is the derived render graph for one job: per-item input declarations
// plus a filter_complex that canonicalizes, trims, fades, captions, and
// concatenates every item into a single video-only stream.
//
// A Plan is a pure function of the media-item list and the font path; it is
// never persisted and is rebuilt on every execution.
type Plan struct {
	Inputs        []Input
	FilterGraph   string
	TotalDuration float64
}

// BuildPlan constructs the render plan for an ordered media-item list.
// fontPath selects the caption font; pass "" to disable caption overlays
// (the caller checks font availability so the builder stays free of I/O).
// All durations must already be valid positive finite values.
func BuildPlan(items []models.MediaItem, fontPath string) *Plan {
	plan := &Plan{}

	var filters []string
	var concatRefs []string

	for i, item := range items {
		input := Input{Path: item.SourcePath}
		if item.Kind == models.MediaKindImage {
			// Loop the still frame; -t bounds how long the loop is read.
			input.Args = []string{"-loop", "1", "-t", formatSeconds(item.DisplayDuration)}
		} else {
			input.Args = []string{"-t", formatSeconds(item.DisplayDuration)}
		}
		plan.Inputs = append(plan.Inputs, input)

		filters = append(filters, buildItemFilter(i, item, fontPath))
		concatRefs = append(concatRefs, fmt.Sprintf("[v%d]", i))

		plan.TotalDuration += item.DisplayDuration
	}

	filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[outv]",
		strings.Join(concatRefs, ""), len(items)))

	plan.FilterGraph = strings.Join(filters, ";")
	return plan
}

// Args assembles the full ffmpeg argument list for this plan.
func (p *Plan) Args(outputPath string) []string {
	var args []string
	for _, input := range p.Inputs {
		args = append(args, input.Args...)
		args = append(args, "-i", input.Path)
	}

	args = append(args,
		"-filter_complex", p.FilterGraph,
		"-map", "[outv]",
		"-an", // video-only output, no audio stream carried through
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		"-y",
		outputPath,
	)
	return args
}

// buildItemFilter emits one item's filter chain: scale to fit 1280x720,
// pad centered, square pixels, 30fps, trim to the display duration, fade
// in/out, and an optional bottom-centered boxed caption.
func buildItemFilter(index int, item models.MediaItem, fontPath string) string {
	fade := fadeDuration
	if half := item.DisplayDuration / 2; half < fade {
		fade = half
	}

	chain := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", outputWidth, outputHeight),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", outputWidth, outputHeight),
		"setsar=1",
		fmt.Sprintf("fps=%d", videoFPS),
		fmt.Sprintf("trim=duration=%s", formatSeconds(item.DisplayDuration)),
		"setpts=PTS-STARTPTS",
		fmt.Sprintf("fade=t=in:st=0:d=%s", formatSeconds(fade)),
		fmt.Sprintf("fade=t=out:st=%s:d=%s",
			formatSeconds(item.DisplayDuration-fade), formatSeconds(fade)),
	}

	if item.CaptionText != "" && fontPath != "" {
		chain = append(chain, fmt.Sprintf(
			"drawtext=fontfile='%s':text='%s':fontsize=%d:fontcolor=white:box=1:boxcolor=black@%.1f:boxborderw=%d:x=(w-text_w)/2:y=h-text_h-%d",
			escapeFilterValue(fontPath), escapeFilterValue(item.CaptionText),
			captionFontSize, captionBoxOpacity, captionBoxBorder, captionBottomMargin,
		))
	}

	return fmt.Sprintf("[%d:v]%s[v%d]", index, strings.Join(chain, ","), index)
}

// formatSeconds renders a duration with millisecond precision, which keeps
// repeated builds of the same plan byte-identical.
func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}

// escapeFilterValue escapes characters ffmpeg filter syntax treats
// specially inside quoted values.
func escapeFilterValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ":", "\\:")
	s = strings.ReplaceAll(s, "'", "'\\''")
	s = strings.ReplaceAll(s, "%", "\\%")
	return s
}
