package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"parakeet/internal/ffmpeg"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// constant streams n frames with fixed left/right values.
func constant(n int, l, r float64) beep.Streamer {
	left := n
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if left == 0 {
			return 0, false
		}
		k := min(len(samples), left)
		for i := range samples[:k] {
			samples[i] = [2]float64{l, r}
		}
		left -= k
		return k, true
	})
}

func pcmFormat(rate, channels int) beep.Format {
	return beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: channels, Precision: 2}
}

func writeFixture(t *testing.T, name string, f beep.Format, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if err := wav.Encode(out, constant(frames, 0.25, -0.25), f); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), t.TempDir())
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Load err = %v, want ErrFileNotFound", err)
	}
}

func TestLoad_WAV(t *testing.T) {
	path := writeFixture(t, "stereo.wav", pcmFormat(44100, 2), 44100)

	buf, err := Load(context.Background(), path, t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if buf.Channels() != 2 {
		t.Errorf("Channels = %d, want 2", buf.Channels())
	}
	if buf.SampleRate() != 44100 {
		t.Errorf("SampleRate = %d, want 44100", buf.SampleRate())
	}
	if buf.Len() != 44100 {
		t.Errorf("Len = %d, want 44100", buf.Len())
	}
	if buf.DurationMs() != 1000 {
		t.Errorf("DurationMs = %d, want 1000", buf.DurationMs())
	}
}

func TestLoad_CorruptWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(context.Background(), path, t.TempDir()); err == nil {
		t.Error("expected decode error for corrupt WAV")
	}
}

func TestLoad_NonNativeWithoutFFmpeg(t *testing.T) {
	if ffmpeg.Available() {
		t.Skip("ffmpeg installed")
	}
	path := filepath.Join(t.TempDir(), "voice.m4a")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	tempDir := t.TempDir()
	_, err := Load(context.Background(), path, tempDir)
	if !errors.Is(err, ffmpeg.ErrNotFound) {
		t.Errorf("Load err = %v, want ffmpeg.ErrNotFound", err)
	}

	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files", len(entries))
	}
}

// writeSurround writes a 16-bit 5.1 WAV with signal only on the center channel.
// beep cannot encode more than two channels, so the file is built by hand.
func writeSurround(t *testing.T, rate, frames int) string {
	t.Helper()
	const channels, center = 6, 2
	data := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		data[i*channels+center] = 16000
	}

	var b bytes.Buffer
	le := binary.LittleEndian
	dataSize := uint32(len(data) * 2)
	b.WriteString("RIFF")
	binary.Write(&b, le, 36+dataSize)
	b.WriteString("WAVEfmt ")
	binary.Write(&b, le, uint32(16))
	binary.Write(&b, le, uint16(1)) // PCM
	binary.Write(&b, le, uint16(channels))
	binary.Write(&b, le, uint32(rate))
	binary.Write(&b, le, uint32(rate*channels*2))
	binary.Write(&b, le, uint16(channels*2))
	binary.Write(&b, le, uint16(16))
	b.WriteString("data")
	binary.Write(&b, le, dataSize)
	binary.Write(&b, le, data)

	path := filepath.Join(t.TempDir(), "surround.wav")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MultichannelWithoutFFmpeg(t *testing.T) {
	if ffmpeg.Available() {
		t.Skip("ffmpeg installed")
	}
	tempDir := t.TempDir()
	_, err := Load(context.Background(), writeSurround(t, TargetSampleRate, 1600), tempDir)
	if !errors.Is(err, ffmpeg.ErrNotFound) {
		t.Errorf("Load err = %v, want ffmpeg.ErrNotFound", err)
	}
	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files", len(entries))
	}
}

func TestLoad_MultichannelKeepsCenter(t *testing.T) {
	if !ffmpeg.Available() {
		t.Skip("ffmpeg not installed")
	}
	buf, err := Load(context.Background(), writeSurround(t, TargetSampleRate, 1600), t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if buf.Channels() != 1 {
		t.Fatalf("Channels() = %d, want 1", buf.Channels())
	}

	samples := make([][2]float64, buf.Len())
	n, _ := buf.Slice(0, buf.DurationMs()).Stream(samples)
	peak := 0.0
	for _, s := range samples[:n] {
		peak = math.Max(peak, math.Abs(s[0]))
	}
	if peak < 0.05 {
		t.Errorf("center channel lost in downmix, peak = %.4f", peak)
	}
}

func TestNativeFormat(t *testing.T) {
	for _, ext := range []string{".wav", ".MP3", ".flac", ".ogg"} {
		if !NativeFormat(ext) {
			t.Errorf("NativeFormat(%q) = false, want true", ext)
		}
	}
	if NativeFormat(".m4a") {
		t.Error("NativeFormat(.m4a) = true, want false")
	}
}

func TestNormalize_AlreadyNormalized(t *testing.T) {
	buf := NewBuffer(pcmFormat(TargetSampleRate, 1), constant(32000, 0.1, 0.1))

	got, steps := Normalize(buf)
	if got != buf {
		t.Error("expected the same buffer back for mono 16 kHz input")
	}
	if steps.Changed() {
		t.Errorf("steps = %+v, want no conversion", steps)
	}
	if got.Channels() != 1 || got.SampleRate() != TargetSampleRate || got.Len() != 32000 {
		t.Errorf("attributes changed: channels=%d rate=%d len=%d", got.Channels(), got.SampleRate(), got.Len())
	}
}

func TestNormalize_StereoResample(t *testing.T) {
	buf := NewBuffer(pcmFormat(44100, 2), constant(44100, 0.5, 0.5))

	got, steps := Normalize(buf)
	if !steps.Downmixed || !steps.Resampled {
		t.Errorf("steps = %+v, want downmix and resample", steps)
	}
	if steps.FromChannels != 2 || steps.FromRate != 44100 {
		t.Errorf("steps source = %d ch / %d Hz, want 2 / 44100", steps.FromChannels, steps.FromRate)
	}
	if got.Channels() != 1 {
		t.Errorf("Channels = %d, want 1", got.Channels())
	}
	if got.SampleRate() != TargetSampleRate {
		t.Errorf("SampleRate = %d, want %d", got.SampleRate(), TargetSampleRate)
	}
	// Resampling may lose or gain a few frames at the edges.
	if diff := math.Abs(float64(got.Len() - 16000)); diff > 320 {
		t.Errorf("Len = %d, want about 16000", got.Len())
	}
}

func TestNormalize_DownmixAverages(t *testing.T) {
	buf := NewBuffer(pcmFormat(TargetSampleRate, 2), constant(100, 0.6, 0.2))

	got, steps := Normalize(buf)
	if !steps.Downmixed || steps.Resampled {
		t.Errorf("steps = %+v, want downmix only", steps)
	}
	if got.Len() != 100 {
		t.Fatalf("Len = %d, want 100", got.Len())
	}

	samples := make([][2]float64, 10)
	n, _ := got.Slice(0, got.DurationMs()).Stream(samples)
	if n != 10 {
		t.Fatalf("streamed %d samples, want 10", n)
	}
	for i, s := range samples {
		if math.Abs(s[0]-0.4) > 1e-3 || math.Abs(s[1]-0.4) > 1e-3 {
			t.Errorf("sample %d = %v, want [0.4 0.4]", i, s)
		}
	}
}

func TestBuffer_Frames(t *testing.T) {
	buf := NewBuffer(pcmFormat(TargetSampleRate, 1), constant(40000, 0, 0))

	if buf.DurationMs() != 2500 {
		t.Errorf("DurationMs = %d, want 2500", buf.DurationMs())
	}

	tests := []struct {
		startMs, endMs int64
		from, to       int
	}{
		{0, 1000, 0, 16000},
		{1000, 2000, 16000, 32000},
		{2000, 3000, 32000, 40000}, // clipped to the end
		{-10, 5, 0, 80},
		{3000, 1000, 40000, 40000},
	}
	for _, tt := range tests {
		from, to := buf.Frames(tt.startMs, tt.endMs)
		if from != tt.from || to != tt.to {
			t.Errorf("Frames(%d, %d) = [%d, %d), want [%d, %d)", tt.startMs, tt.endMs, from, to, tt.from, tt.to)
		}
	}
}

func TestBuffer_WriteWAVRoundTrip(t *testing.T) {
	buf := NewBuffer(pcmFormat(TargetSampleRate, 1), constant(40000, 0.3, 0.3))
	from, to := buf.Frames(1000, 2500)

	path := filepath.Join(t.TempDir(), "segment.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := buf.WriteWAV(f, 1000, 2500); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	f.Close()

	decoded, err := Load(context.Background(), path, t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if decoded.Len() != to-from {
		t.Errorf("decoded Len = %d, want %d", decoded.Len(), to-from)
	}
	if decoded.Channels() != 1 || decoded.SampleRate() != TargetSampleRate {
		t.Errorf("decoded format = %d ch / %d Hz, want 1 / %d", decoded.Channels(), decoded.SampleRate(), TargetSampleRate)
	}
}

func TestBuffer_DurationMsZero(t *testing.T) {
	buf := NewBuffer(pcmFormat(TargetSampleRate, 1), constant(0, 0, 0))
	if buf.Len() != 0 || buf.DurationMs() != 0 {
		t.Errorf("empty buffer: Len=%d DurationMs=%d, want 0/0", buf.Len(), buf.DurationMs())
	}
}
