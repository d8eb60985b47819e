package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"parakeet/internal/ffmpeg"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// ErrFileNotFound is returned when the input path does not exist.
var ErrFileNotFound = errors.New("audio file not found")

// maxNativeChannels is the most channels beep streams carry.
const maxNativeChannels = 2

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

// nativeDecoders handle containers without shelling out to ffmpeg.
var nativeDecoders = map[string]decodeFunc{
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// NativeFormat reports whether ext can be decoded without ffmpeg.
func NativeFormat(ext string) bool {
	_, ok := nativeDecoders[strings.ToLower(ext)]
	return ok
}

// Load decodes the file at path into a Buffer. Containers without a native
// decoder and files with more than two channels are converted to a temporary
// mono WAV in tempDir with ffmpeg first; the temporary file is removed before
// Load returns.
func Load(ctx context.Context, path, tempDir string) (*Buffer, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if decode, ok := nativeDecoders[ext]; ok {
		buf, err := decodeFile(path, decode)
		if err != nil || buf.Channels() <= maxNativeChannels {
			return buf, err
		}
		// The native decoders keep only the first two channels.
		slog.Info("multichannel audio, downmixing with ffmpeg", "channels", buf.Channels())
	} else {
		slog.Info("no native decoder, converting with ffmpeg", "ext", ext)
	}

	tmp, err := os.CreateTemp(tempDir, "convert_*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer removeQuietly(tmpPath)

	if err := ffmpeg.ConvertToWAV(ctx, path, tmpPath); err != nil {
		return nil, fmt.Errorf("convert %s: %w", filepath.Base(path), err)
	}
	return decodeFile(tmpPath, nativeDecoders[".wav"])
}

func decodeFile(path string, decode decodeFunc) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	s, format, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	defer s.Close()

	buf := NewBuffer(format, s)
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return buf, nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("remove temp file", "file", filepath.Base(path), "err", err)
	}
}
