package model

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

//go:embed assets/nemo_worker.py
var nemoWorkerScript []byte

const (
	maxResponseLine = 16 << 20
	stderrTailLines = 10
	shutdownGrace   = 5 * time.Second
)

// NeMoOptions configures the embedded NeMo worker.
type NeMoOptions struct {
	Python  string
	Model   string
	Device  string // auto|cpu|cuda
	TempDir string
}

// NeMo talks to a long-running Python worker that keeps the model in memory.
// Requests and responses are single JSON lines on the worker's stdin/stdout.
type NeMo struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	lines  *bufio.Scanner
	g      *errgroup.Group
	tail   *lineTail
	device string

	cleanup func()
	closed  bool
}

type workerRequest struct {
	Paths []string `json:"paths"`
}

type workerResponse struct {
	Ready  bool     `json:"ready"`
	Device string   `json:"device"`
	Texts  []string `json:"texts"`
	Error  string   `json:"error"`
}

// StartNeMo writes the worker script to a temp file, starts it and waits
// until the model has loaded.
func StartNeMo(ctx context.Context, opts NeMoOptions) (*NeMo, error) {
	python := opts.Python
	if python == "" {
		python = "python3"
	}
	device := opts.Device
	if device == "" {
		device = "auto"
	}

	script, err := os.CreateTemp(opts.TempDir, "nemo_worker_*.py")
	if err != nil {
		return nil, fmt.Errorf("create worker script: %w", err)
	}
	scriptPath := script.Name()
	_, err = script.Write(nemoWorkerScript)
	if cerr := script.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(scriptPath)
		return nil, fmt.Errorf("write worker script: %w", err)
	}

	cmd := exec.Command(python, scriptPath, "--model", opts.Model, "--device", device)
	return startWorker(ctx, cmd, func() { os.Remove(scriptPath) })
}

func startWorker(ctx context.Context, cmd *exec.Cmd, cleanup func()) (*NeMo, error) {
	fail := func(err error) (*NeMo, error) {
		cleanup()
		return nil, err
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fail(fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("start worker: %w", err))
	}

	n := &NeMo{
		cmd:     cmd,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		lines:   bufio.NewScanner(stdout),
		g:       new(errgroup.Group),
		tail:    &lineTail{max: stderrTailLines},
		cleanup: cleanup,
	}
	n.lines.Buffer(make([]byte, 64*1024), maxResponseLine)

	n.g.Go(func() error {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			line := sc.Text()
			n.tail.add(line)
			slog.Debug("nemo worker", "line", line)
		}
		return sc.Err()
	})

	resp, err := n.read(ctx)
	if err != nil {
		n.kill()
		return nil, fmt.Errorf("worker did not become ready: %w", err)
	}
	if resp.Error != "" {
		n.kill()
		return nil, fmt.Errorf("worker failed to load model: %s", resp.Error)
	}
	if !resp.Ready {
		n.kill()
		return nil, errors.New("worker sent an unexpected first message")
	}

	n.device = resp.Device
	slog.Info("model bound to device", "device", n.device)
	return n, nil
}

// Device returns the device the worker placed the model on.
func (n *NeMo) Device() string { return n.device }

// Transcribe sends paths to the worker in one batch.
func (n *NeMo) Transcribe(ctx context.Context, paths []string) ([]Hypothesis, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrNoModel
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := n.enc.Encode(workerRequest{Paths: paths}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := n.read(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("inference: %s", resp.Error)
	}

	results := make([]Hypothesis, 0, len(resp.Texts))
	for _, text := range resp.Texts {
		results = append(results, Hypothesis{Text: strings.TrimSpace(text)})
	}
	return results, nil
}

// read returns the next JSON line from the worker. Other stdout output,
// such as library banners, is logged and skipped. Cancelling ctx kills the worker.
func (n *NeMo) read(ctx context.Context) (workerResponse, error) {
	type result struct {
		resp workerResponse
		err  error
	}
	done := make(chan result, 1)

	go func() {
		for n.lines.Scan() {
			line := strings.TrimSpace(n.lines.Text())
			if !strings.HasPrefix(line, "{") {
				if line != "" {
					slog.Debug("nemo worker stdout", "line", line)
				}
				continue
			}
			var resp workerResponse
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				done <- result{err: fmt.Errorf("decode worker response: %w", err)}
				return
			}
			done <- result{resp: resp}
			return
		}
		err := n.lines.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		done <- result{err: n.exitError(err)}
	}()

	select {
	case <-ctx.Done():
		n.kill()
		<-done
		return workerResponse{}, ctx.Err()
	case r := <-done:
		return r.resp, r.err
	}
}

// exitError annotates err with the worker's last stderr lines.
func (n *NeMo) exitError(err error) error {
	n.g.Wait()
	if tail := n.tail.String(); tail != "" {
		return fmt.Errorf("worker exited: %w\n%s", err, tail)
	}
	return fmt.Errorf("worker exited: %w", err)
}

func (n *NeMo) kill() {
	if n.cmd.Process != nil {
		n.cmd.Process.Kill()
	}
	n.stdin.Close()
	n.cmd.Wait()
	n.g.Wait()
	n.cleanup()
	n.closed = true
}

// Close asks the worker to exit by closing its stdin and waits for it,
// killing it if it does not exit in time.
func (n *NeMo) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	defer n.cleanup()

	n.stdin.Close()
	timer := time.AfterFunc(shutdownGrace, func() {
		n.cmd.Process.Kill()
	})
	defer timer.Stop()

	err := n.cmd.Wait()
	n.g.Wait()
	if err != nil {
		return fmt.Errorf("worker exit: %w", err)
	}
	return nil
}

// lineTail keeps the last max lines written to it.
type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
