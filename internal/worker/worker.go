package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"parakeet/internal/audio"
	"parakeet/internal/ffmpeg"
	"parakeet/internal/model"
	"parakeet/internal/pipeline"
)

// Options configures the worker.
type Options struct {
	InputPath        string
	SegmentLengthSec int
	TempDir          string // "" uses the system temp directory
	ContinueOnError  bool
	Models           *model.Provider
}

// Run is the top-level orchestrator for the transcription pipeline. It returns
// the transcript of every segment in order.
func Run(ctx context.Context, opts Options) (*pipeline.Transcript, error) {
	defer slog.Info("Temporary files cleaned up.")

	segmenter, err := pipeline.NewSegmenter(opts.SegmentLengthSec)
	if err != nil {
		return nil, wrap(KindOther, "segment", err)
	}

	slog.Info("processing file", "input", filepath.Base(opts.InputPath))

	buf, err := audio.Load(ctx, opts.InputPath, opts.TempDir)
	if err != nil {
		return nil, wrap(KindOther, "load audio", err)
	}
	ffmpeg.LogMediaInfo(ctx, opts.InputPath)

	buf = normalize(buf)

	totalMs := buf.DurationMs()
	slog.Info("total audio length", "seconds", fmt.Sprintf("%.2f", float64(totalMs)/1000))
	slog.Info("splitting audio",
		"segments", segmenter.Count(totalMs),
		"segment_length_sec", opts.SegmentLengthSec)

	return processSequential(ctx, buf, segmenter, opts)
}

func normalize(buf *audio.Buffer) *audio.Buffer {
	out, steps := audio.Normalize(buf)
	if steps.Downmixed {
		slog.Info("converted audio to mono", "channels", steps.FromChannels)
	}
	if steps.Resampled {
		slog.Info("resampled audio", "from_hz", steps.FromRate, "to_hz", audio.TargetSampleRate)
	}
	return out
}
