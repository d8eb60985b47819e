// Package model loads speech-to-text models and runs inference on audio files.
//
// Supported backends:
//   - nemo: a NeMo ASR model hosted by an embedded Python worker (default)
//   - http: an OpenAI-compatible /v1/audio/transcriptions server
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"parakeet/internal/config"
)

// ErrNoModel is returned by a Provider that has been closed.
var ErrNoModel = errors.New("model provider closed")

// Hypothesis is one recognition result.
type Hypothesis struct {
	Text string
}

// Model transcribes audio files.
type Model interface {
	// Transcribe returns results for paths, in order. A backend may return
	// fewer results than paths when it produced nothing for a file.
	Transcribe(ctx context.Context, paths []string) ([]Hypothesis, error)
	// Close releases backend resources.
	Close() error
}

// Loader initializes a Model.
type Loader func(ctx context.Context) (Model, error)

// Provider loads a model on first use and hands out the same instance afterwards.
type Provider struct {
	name string
	load Loader

	mu     sync.Mutex
	model  Model
	closed bool
}

// NewProvider returns a Provider for the named model. Nothing is loaded until Model is called.
func NewProvider(name string, load Loader) *Provider {
	return &Provider{name: name, load: load}
}

// Name returns the model name.
func (p *Provider) Name() string { return p.name }

// Model returns the loaded model, loading it on the first call. A failed load
// is not cached.
func (p *Provider) Model(ctx context.Context) (Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrNoModel
	}
	if p.model != nil {
		return p.model, nil
	}

	slog.Info("loading model", "model", p.name)
	start := time.Now()

	m, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", p.name, err)
	}
	p.model = m

	slog.Info("model loaded", "model", p.name, "elapsed", time.Since(start).Round(time.Millisecond))
	return m, nil
}

// Close releases the loaded model, if any. Later calls to Model fail with ErrNoModel.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// New creates a Provider for the backend selected in cfg.
func New(cfg *config.Config) (*Provider, error) {
	switch cfg.Backend {
	case config.BackendNeMo:
		opts := NeMoOptions{
			Python:  cfg.PythonPath,
			Model:   cfg.ModelName,
			Device:  cfg.Device,
			TempDir: cfg.TempDir,
		}
		return NewProvider(cfg.ModelName, func(ctx context.Context) (Model, error) {
			return StartNeMo(ctx, opts)
		}), nil

	case config.BackendHTTP:
		opts := HTTPOptions{
			BaseURL:         cfg.ServerURL,
			Model:           cfg.ModelName,
			APIKey:          cfg.APIKey,
			Timeout:         cfg.RequestTimeout,
			RateLimitPerMin: cfg.RateLimitPerMin,
		}
		return NewProvider(cfg.ModelName, func(ctx context.Context) (Model, error) {
			c := NewHTTPClient(opts)
			if err := c.Check(ctx); err != nil {
				c.Close()
				return nil, err
			}
			return c, nil
		}), nil

	default:
		return nil, fmt.Errorf("unknown backend %q (supported: %s, %s)", cfg.Backend, config.BackendNeMo, config.BackendHTTP)
	}
}
