package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	transcriptionsPath = "/v1/audio/transcriptions"
	modelsPath         = "/v1/models"
)

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	BaseURL         string
	Model           string
	APIKey          string
	Timeout         time.Duration
	RateLimitPerMin int // 0 disables limiting
}

// HTTPClient runs inference on an OpenAI-compatible transcription server.
type HTTPClient struct {
	opts    HTTPOptions
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the server at opts.BaseURL.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	c := &HTTPClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
	if opts.RateLimitPerMin > 0 {
		// Tokens per second = RPM / 60.
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RateLimitPerMin)/60.0), 1)
	}
	return c
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Check verifies the server is reachable and serves the configured model.
func (c *HTTPClient) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+modelsPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("list models: status %d: %s", resp.StatusCode, string(body))
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decode model list: %w", err)
	}
	for _, m := range list.Data {
		if m.ID == c.opts.Model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not served by %s", c.opts.Model, c.opts.BaseURL)
}

// Transcribe uploads each file in turn and returns one result per file.
func (c *HTTPClient) Transcribe(ctx context.Context, paths []string) ([]Hypothesis, error) {
	results := make([]Hypothesis, 0, len(paths))
	for _, path := range paths {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		text, err := c.transcribeFile(ctx, path)
		if err != nil {
			return nil, err
		}
		results = append(results, Hypothesis{Text: text})
	}
	return results, nil
}

// Close drops idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *HTTPClient) transcribeFile(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}

	// Build multipart form body using a pipe.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer mw.Close()

		if err := mw.WriteField("model", c.opts.Model); err != nil {
			errCh <- err
			return
		}
		if err := mw.WriteField("response_format", "json"); err != nil {
			errCh <- err
			return
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(filePath)))
		h.Set("Content-Type", "audio/wav")
		part, err := mw.CreatePart(h)
		if err != nil {
			errCh <- err
			return
		}

		if _, err := io.Copy(part, f); err != nil {
			errCh <- err
			return
		}

		errCh <- nil
	}()

	// Estimate total size: file size + ~1KB form overhead.
	body := &progressReader{
		reader: pr,
		total:  stat.Size() + 1024,
		callback: func(read, total int64) {
			pct := math.Min(float64(read)/float64(total)*100, 100)
			slog.Debug("upload progress", "file", filepath.Base(filePath), "percent", fmt.Sprintf("%.1f%%", pct))
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+transcriptionsPath, body)
	if err != nil {
		pr.Close()
		<-errCh
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.client.Do(req)
	// Unblock the writer if the server answered before reading the whole body.
	pr.Close()
	writeErr := <-errCh
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if writeErr != nil {
		return "", fmt.Errorf("multipart write error: %w", writeErr)
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// ProgressFunc is called with (bytesRead, totalBytes) during upload.
type ProgressFunc func(bytesRead, totalBytes int64)

// progressReader wraps an io.Reader and reports progress.
type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	callback ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.read += int64(n)
	if pr.callback != nil {
		pr.callback(pr.read, pr.total)
	}
	return n, err
}
