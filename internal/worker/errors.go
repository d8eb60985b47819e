package worker

import (
	"errors"
	"os/exec"

	"parakeet/internal/audio"
	"parakeet/internal/ffmpeg"
)

// Kind classifies pipeline failures for the user-facing error boundary.
type Kind int

const (
	KindOther Kind = iota
	KindInputNotFound
	KindDecodeDependencyMissing
	KindInferenceFailed
)

func (k Kind) String() string {
	switch k {
	case KindInputNotFound:
		return "input not found"
	case KindDecodeDependencyMissing:
		return "decode dependency missing"
	case KindInferenceFailed:
		return "inference failed"
	default:
		return "other"
	}
}

// Error is a failed pipeline step.
type Error struct {
	Kind Kind
	Op   string // step that failed, e.g. "load", "transcribe segment 2/3"
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err. Errors that are not an *Error are
// classified by the sentinel they wrap.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindOther {
		return e.Kind
	}
	switch {
	case errors.Is(err, audio.ErrFileNotFound):
		return KindInputNotFound
	case errors.Is(err, ffmpeg.ErrNotFound), errors.Is(err, exec.ErrNotFound):
		return KindDecodeDependencyMissing
	}
	return KindOther
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
