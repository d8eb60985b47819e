package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// ErrNotFound is returned when the ffmpeg or ffprobe binary is not on the PATH.
var ErrNotFound = errors.New("ffmpeg not found")

// MediaInfo holds stream information from ffprobe.
type MediaInfo struct {
	Duration   float64
	Codec      string
	SampleRate int
	Channels   int
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Available returns true if ffmpeg is on the PATH.
func Available() bool {
	_, err := lookPath("ffmpeg")
	return err == nil
}

// probeOutput mirrors ffprobe JSON structure.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// ProbeMedia uses ffprobe to get duration and the first audio stream's parameters.
func ProbeMedia(ctx context.Context, path string) (*MediaInfo, error) {
	if _, err := lookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe: %w", ErrNotFound)
	}

	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels:format=duration",
		"-of", "json",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(out)
}

func parseProbe(out []byte) (*MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}

	dur, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	info := &MediaInfo{Duration: dur, Codec: "N/A"}

	if len(probe.Streams) > 0 {
		s := probe.Streams[0]
		if s.CodecName != "" {
			info.Codec = s.CodecName
		}
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		info.Channels = s.Channels
	}

	return info, nil
}

// ConvertToWAV decodes any container ffmpeg understands into a mono 16 kHz
// 16-bit PCM WAV file at outputPath.
func ConvertToWAV(ctx context.Context, inputPath, outputPath string) error {
	if !Available() {
		return ErrNotFound
	}

	slog.Debug("converting with ffmpeg", "input", filepath.Base(inputPath), "output", filepath.Base(outputPath))

	cmd := exec.CommandContext(ctx,
		"ffmpeg", "-i", inputPath,
		"-vn", "-ac", "1", "-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav", "-y",
		outputPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg convert failed: %w\n%s", err, string(out))
	}
	return nil
}

// LogMediaInfo logs file size and, when ffprobe is installed, stream information.
func LogMediaInfo(ctx context.Context, path string) *MediaInfo {
	stat, err := os.Stat(path)
	if err != nil {
		slog.Warn("cannot stat file", "path", path, "err", err)
		return nil
	}

	sizeMB := float64(stat.Size()) / (1024 * 1024)
	msg := fmt.Sprintf("file size: %.2f MB", sizeMB)

	info, err := ProbeMedia(ctx, path)
	if err == nil && info != nil {
		minutes := int(info.Duration) / 60
		seconds := int(info.Duration) % 60
		msg += fmt.Sprintf(" | duration: %02d:%02d | codec: %s", minutes, seconds, info.Codec)
	}

	slog.Debug(msg)
	return info
}
