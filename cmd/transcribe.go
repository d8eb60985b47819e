package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"parakeet/internal/config"
	"parakeet/internal/model"
	"parakeet/internal/worker"

	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio_file>",
	Short: "Transcribe an audio file and print the text",
	Long: `Transcribe a WAV or MP3 file (other containers need ffmpeg) with a pretrained
speech-to-text model and print the full transcription to standard output.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

var (
	segmentLength   int
	backend         string
	modelName       string
	device          string
	serverURL       string
	tempDir         string
	continueOnError bool
	envFile         string
)

func init() {
	defaults := config.Default()

	// Persistent so that "parakeet <audio_file>" accepts the same flags.
	flags := rootCmd.PersistentFlags()
	flags.IntVar(&segmentLength, "segment_length", defaults.SegmentLengthSec,
		"length of audio segments in seconds; decrease this if you run out of memory")
	flags.StringVar(&backend, "backend", defaults.Backend, "model backend: nemo, http")
	flags.StringVarP(&modelName, "model", "m", defaults.ModelName, "pretrained model name")
	flags.StringVar(&device, "device", defaults.Device, "device for the nemo backend: auto, cpu, cuda")
	flags.StringVar(&serverURL, "server-url", defaults.ServerURL, "base URL of the http backend")
	flags.StringVar(&tempDir, "temp-dir", "", "directory for temporary segment files (default: system temp)")
	flags.BoolVar(&continueOnError, "continue-on-error", false, "replace failed segments with a placeholder instead of aborting")
	flags.StringVar(&envFile, "env-file", ".env", "path to a .env file")

	rootCmd.AddCommand(transcribeCmd)
}

// overrides collects the flags the user actually set.
func overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{EnvFile: envFile}
	changed := cmd.Flags().Changed
	if changed("segment_length") {
		o.SegmentLengthSec = &segmentLength
	}
	if changed("backend") {
		o.Backend = &backend
	}
	if changed("model") {
		o.ModelName = &modelName
	}
	if changed("device") {
		o.Device = &device
	}
	if changed("server-url") {
		o.ServerURL = &serverURL
	}
	if changed("temp-dir") {
		o.TempDir = &tempDir
	}
	if changed("continue-on-error") {
		o.ContinueOnError = &continueOnError
	}
	return o
}

// runTranscribe reports every failure on stdout and returns nil, so handled
// errors exit with status 0.
func runTranscribe(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	out := cmd.OutOrStdout()

	cfg, err := config.Load(overrides(cmd))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(out, "An error occurred: %v\n", err)
		return nil
	}
	setupLogging(out, cfg.LogLevel)

	provider, err := model.New(cfg)
	if err != nil {
		fmt.Fprintf(out, "An error occurred: %v\n", err)
		return nil
	}
	defer func() {
		if err := provider.Close(); err != nil {
			slog.Warn("close model", "err", err)
		}
	}()

	// Setup signal handling for graceful cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transcript, err := worker.Run(ctx, worker.Options{
		InputPath:        inputPath,
		SegmentLengthSec: cfg.SegmentLengthSec,
		TempDir:          cfg.TempDir,
		ContinueOnError:  cfg.ContinueOnError,
		Models:           provider,
	})
	if err != nil {
		reportError(cmd, inputPath, err)
		return nil
	}

	fmt.Fprintln(out, "\nFull Transcription:")
	fmt.Fprintln(out, transcript.String())
	return nil
}

func reportError(cmd *cobra.Command, inputPath string, err error) {
	out := cmd.OutOrStdout()
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, "Transcription cancelled.")
	case worker.KindOf(err) == worker.KindInputNotFound:
		fmt.Fprintf(out, "Error: Audio file not found at %s\n", inputPath)
	case worker.KindOf(err) == worker.KindDecodeDependencyMissing:
		fmt.Fprintln(out, "Error: Required library (like FFmpeg for some audio formats) might not be installed or found.")
		fmt.Fprintln(out, "Please ensure FFmpeg is installed and in your system's PATH.")
	default:
		fmt.Fprintf(out, "An error occurred: %v\n", err)
	}
	slog.Debug("run failed", "kind", worker.KindOf(err), "err", err)
}
