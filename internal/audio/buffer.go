// Package audio decodes input files into in-memory buffers, normalizes them
// to the format the speech model expects and exports slices as WAV files.
package audio

import (
	"fmt"
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Target format for speech recognition input.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// pcm16 is the sample precision, in bytes, used for exported WAV files.
const pcm16 = 2

// Buffer is a decoded audio signal held in memory.
type Buffer struct {
	data *beep.Buffer
}

// NewBuffer drains s into a new Buffer with the given format. Samples are
// stored quantized to the format's precision, 16-bit when unset.
func NewBuffer(format beep.Format, s beep.Streamer) *Buffer {
	if format.Precision < 1 {
		format.Precision = pcm16
	}
	data := beep.NewBuffer(format)
	data.Append(s)
	return &Buffer{data: data}
}

// Channels returns the channel count of the source signal.
func (b *Buffer) Channels() int { return b.data.Format().NumChannels }

// SampleRate returns the sample rate in Hz.
func (b *Buffer) SampleRate() int { return int(b.data.Format().SampleRate) }

// Len returns the number of frames.
func (b *Buffer) Len() int { return b.data.Len() }

// Format returns the beep format of the buffer.
func (b *Buffer) Format() beep.Format { return b.data.Format() }

// DurationMs returns the total duration in milliseconds, rounded to the nearest millisecond.
func (b *Buffer) DurationMs() int64 {
	rate := int64(b.SampleRate())
	if rate == 0 {
		return 0
	}
	return (int64(b.Len())*1000 + rate/2) / rate
}

// frameAt converts a millisecond offset to a frame index clamped to the buffer.
func (b *Buffer) frameAt(ms int64) int {
	if ms <= 0 {
		return 0
	}
	frame := ms * int64(b.SampleRate()) / 1000
	if frame > int64(b.Len()) {
		return b.Len()
	}
	return int(frame)
}

// Frames returns the frame range covering [startMs, endMs).
func (b *Buffer) Frames(startMs, endMs int64) (from, to int) {
	from, to = b.frameAt(startMs), b.frameAt(endMs)
	if to < from {
		to = from
	}
	return from, to
}

// Slice streams the audio between startMs and endMs.
func (b *Buffer) Slice(startMs, endMs int64) beep.StreamSeeker {
	from, to := b.Frames(startMs, endMs)
	return b.data.Streamer(from, to)
}

// WriteWAV encodes the audio between startMs and endMs as 16-bit PCM WAV.
func (b *Buffer) WriteWAV(w io.WriteSeeker, startMs, endMs int64) error {
	format := b.Format()
	format.Precision = pcm16
	if err := wav.Encode(w, b.Slice(startMs, endMs), format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}
