package render

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// stderr retained for diagnostics; ffmpeg front-loads its banner, the useful
// error text is at the tail.
const stderrTailBytes = 8 << 10

// ProgressFn receives the render's completion percentage (0-100).
// Best-effort observability only, never a correctness signal.
type ProgressFn func(percent float64)

// Executor drives the ffmpeg subprocess through a render plan. One render at
// a time per call; concurrency lives in the worker pool, not here.
type Executor struct {
	ffmpegPath string
	timeout    time.Duration
}

func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		ffmpegPath: "ffmpeg",
		timeout:    timeout,
	}
}

// Render executes the plan and blocks until the subprocess reaches a
// terminal state. It returns nil only when ffmpeg exited cleanly AND the
// output file exists with nonzero size; a clean exit code alone is not
// sufficient evidence of success.
//
// If the render exceeds the executor's timeout the subprocess is killed and
// a TimeoutError is returned.
func (e *Executor) Render(ctx context.Context, plan *Plan, outputPath string, onProgress ProgressFn) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffmpegPath, plan.Args(outputPath)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open progress pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start encoder")
	}

	var wg sync.WaitGroup
	var stderrTail string

	wg.Add(2)
	go func() {
		defer wg.Done()
		e.consumeProgress(stdout, plan.TotalDuration, onProgress)
	}()
	go func() {
		defer wg.Done()
		stderrTail = readTail(stderr, stderrTailBytes)
	}()

	wg.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		// CommandContext already killed the process; Wait has reaped it, so
		// no orphaned encoder survives the timeout.
		return &TimeoutError{Limit: e.timeout.String()}
	}
	if ctx.Err() != nil {
		// Caller cancelled (shutdown). Not an encoder fault; the "signal:
		// killed" exit is ours.
		return errors.Wrap(ctx.Err(), "render aborted")
	}

	if waitErr != nil {
		detail := strings.TrimSpace(stderrTail)
		if detail == "" {
			detail = waitErr.Error()
		}
		return &EncoderError{Detail: detail}
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		return &OutputMissingError{Path: outputPath}
	}

	return nil
}

// consumeProgress parses ffmpeg's -progress key=value stream, reporting the
// latest percentage and logging it at most once per second of wall time.
func (e *Executor) consumeProgress(r io.Reader, totalDuration float64, onProgress ProgressFn) {
	var lastLog time.Time

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		seconds, ok := parseProgressLine(scanner.Text())
		if !ok {
			continue
		}

		percent := progressPercent(seconds, totalDuration)
		if onProgress != nil {
			onProgress(percent)
		}

		if time.Since(lastLog) >= time.Second {
			log.Printf("[Render] Progress: %.1f%% (%.1fs / %.1fs)", percent, seconds, totalDuration)
			lastLog = time.Now()
		}
	}
}

// parseProgressLine extracts elapsed output time from one -progress line.
// ffmpeg emits out_time_us (microseconds) and out_time_ms; either serves.
func parseProgressLine(line string) (seconds float64, ok bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return 0, false
	}

	switch key {
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return float64(us) / 1e6, true
	default:
		return 0, false
	}
}

// progressPercent converts elapsed output seconds to a 0-100 percentage of
// the plan's total duration, clamped so encoder overshoot never reports >100.
func progressPercent(seconds, totalDuration float64) float64 {
	if totalDuration <= 0 {
		return 0
	}
	percent := seconds / totalDuration * 100
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return percent
}

func readTail(r io.Reader, limit int) string {
	data, _ := io.ReadAll(r)
	if len(data) > limit {
		data = data[len(data)-limit:]
	}
	return string(data)
}
