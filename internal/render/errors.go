package render

import "fmt"

// EncoderError carries the engine's diagnostic output. Error() returns the
// diagnostic unmodified so the job record shows exactly what ffmpeg said.
type EncoderError struct {
	Detail string
}

func (e *EncoderError) Error() string {
	return e.Detail
}

// TimeoutError is returned when a render exceeds the hard ceiling and the
// subprocess was forcibly terminated. Never retried.
type TimeoutError struct {
	Limit string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("render timed out after %s", e.Limit)
}

// OutputMissingError defends against silent truncation: the process exited
// cleanly but the expected artifact is absent or empty.
type OutputMissingError struct {
	Path string
}

func (e *OutputMissingError) Error() string {
	return fmt.Sprintf("encoder exited cleanly but produced no output at %s", e.Path)
}
