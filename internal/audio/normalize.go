package audio

import (
	"github.com/gopxl/beep"
)

// resampleQuality trades CPU for interpolation accuracy; beep accepts 1 to 64.
const resampleQuality = 4

// Steps records which conversions Normalize applied.
type Steps struct {
	Downmixed    bool
	FromChannels int
	Resampled    bool
	FromRate     int
}

// Changed reports whether any conversion ran.
func (s Steps) Changed() bool { return s.Downmixed || s.Resampled }

// Normalize converts b to mono at TargetSampleRate. Each conversion is skipped
// when the buffer already matches; an already-normalized buffer is returned as is.
func Normalize(b *Buffer) (*Buffer, Steps) {
	steps := Steps{FromChannels: b.Channels(), FromRate: b.SampleRate()}
	steps.Downmixed = b.Channels() > TargetChannels
	steps.Resampled = b.SampleRate() != TargetSampleRate

	if !steps.Changed() {
		return b, steps
	}

	format := b.Format()
	var s beep.Streamer = b.data.Streamer(0, b.Len())

	if steps.Downmixed {
		s = downmix(s)
		format.NumChannels = TargetChannels
	}
	if steps.Resampled {
		s = beep.Resample(resampleQuality, format.SampleRate, TargetSampleRate, s)
		format.SampleRate = TargetSampleRate
	}

	return NewBuffer(format, s), steps
}

// downmix averages the left and right channels into both.
func downmix(s beep.Streamer) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		n, ok := s.Stream(samples)
		for i := range samples[:n] {
			mono := (samples[i][0] + samples[i][1]) / 2
			samples[i][0], samples[i][1] = mono, mono
		}
		return n, ok
	})
}
