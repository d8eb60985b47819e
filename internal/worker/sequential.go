package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"parakeet/internal/audio"
	"parakeet/internal/model"
	"parakeet/internal/pipeline"
)

// processSequential transcribes segments one at a time, in order. Each
// segment's temporary file is removed before the next segment starts.
func processSequential(ctx context.Context, buf *audio.Buffer, segmenter *pipeline.Segmenter, opts Options) (*pipeline.Transcript, error) {
	transcript := &pipeline.Transcript{}
	totalMs := buf.DurationMs()
	count := segmenter.Count(totalMs)
	if count == 0 {
		return transcript, nil
	}

	m, err := opts.Models.Model(ctx)
	if err != nil {
		return nil, wrap(KindInferenceFailed, "load model", err)
	}

	for seg := range segmenter.Segments(totalMs) {
		select {
		case <-ctx.Done():
			return nil, wrap(KindOther, "transcribe", ctx.Err())
		default:
		}

		label := fmt.Sprintf("%d/%d", seg.Index+1, count)
		slog.Info("transcribing segment", "segment", label, "range", seg.String())

		text, ok, err := transcribeSegment(ctx, m, buf, seg, opts.TempDir)
		if err != nil {
			err = wrap(KindOf(err), "segment "+label, err)
			if KindOf(err) != KindInferenceFailed || !opts.ContinueOnError || ctx.Err() != nil {
				return nil, err
			}
			slog.Warn("segment failed, continuing", "segment", label, "err", err)
			transcript.AddFailed(seg)
			continue
		}
		if !ok {
			slog.Warn("no result for segment", "segment", label)
			transcript.AddFailed(seg)
			continue
		}
		transcript.Add(seg, text)
	}

	if n := transcript.Failed(); n > 0 {
		slog.Warn("some segments have no transcription", "failed", n, "total", count)
	}
	return transcript, nil
}

// transcribeSegment exports seg to its own temporary WAV file and runs the
// model on it. ok is false when the model returned no result.
func transcribeSegment(ctx context.Context, m model.Model, buf *audio.Buffer, seg pipeline.Segment, dir string) (text string, ok bool, err error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("segment_*_%d.wav", seg.Index))
	if err != nil {
		return "", false, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer removeTemp(path)

	err = buf.WriteWAV(f, seg.StartMs, seg.EndMs)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", false, fmt.Errorf("export segment: %w", err)
	}

	results, err := m.Transcribe(ctx, []string{path})
	if err != nil {
		return "", false, &Error{Kind: KindInferenceFailed, Op: "transcribe", Err: err}
	}
	if len(results) == 0 {
		return "", false, nil
	}
	return results[0].Text, true, nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("remove temp file", "file", filepath.Base(path), "err", err)
	}
}
