package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os/exec"
	"sync"
	"time"
)

const maxStderrBytes = 8 * 1024 // tail of engine stderr kept for diagnostics

// Launcher starts the engine binary as a child process and waits for its API
// to come up. Used only when autostart is configured; normally the engine is
// managed by the desktop app itself.
type Launcher struct {
	bin          string
	engineURL    string
	startTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stderr *tailBuffer
	exited chan struct{}
}

func NewLauncher(bin, engineURL string, startTimeout time.Duration, logger *slog.Logger) *Launcher {
	return &Launcher{
		bin:          bin,
		engineURL:    engineURL,
		startTimeout: startTimeout,
		logger:       logger,
	}
}

// Start spawns the engine and blocks until ping succeeds or the start
// timeout passes. ping is the health probe of the engine client.
func (l *Launcher) Start(ctx context.Context, ping func(context.Context) error) error {
	bin, err := exec.LookPath(l.bin)
	if err != nil {
		return fmt.Errorf("engine binary %q not found: %w", l.bin, err)
	}

	addr, err := listenAddr(l.engineURL)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.cmd != nil {
		l.mu.Unlock()
		return fmt.Errorf("engine already launched")
	}

	cmd := exec.Command(bin, "--addr", addr)
	stderr := &tailBuffer{limit: maxStderrBytes}
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to start engine: %w", err)
	}
	l.cmd = cmd
	l.stderr = stderr
	l.exited = make(chan struct{})
	exited := l.exited
	l.mu.Unlock()

	l.logger.Info("engine process started", "bin", bin, "addr", addr, "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if err != nil {
			exitCode = -1
		}
		l.logger.Warn("engine process exited", "exit_code", exitCode, "stderr_tail", stderr.String())
		close(exited)
	}()

	deadline := time.Now().Add(l.startTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return fmt.Errorf("engine exited during startup: %s", stderr.String())
		case <-time.After(250 * time.Millisecond):
		}

		if err := ping(ctx); err == nil {
			l.logger.Info("engine ready", "addr", addr)
			return nil
		}
	}

	l.Stop()
	return fmt.Errorf("engine did not become ready within %s: %s", l.startTimeout, stderr.String())
}

// Stop kills the child process if it is still running.
func (l *Launcher) Stop() {
	l.mu.Lock()
	cmd := l.cmd
	exited := l.exited
	l.cmd = nil
	l.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		l.logger.Debug("engine kill failed", "error", err)
		return
	}
	if exited != nil {
		select {
		case <-exited:
		case <-time.After(2 * time.Second):
		}
	}
}

func listenAddr(engineURL string) (string, error) {
	u, err := url.Parse(engineURL)
	if err != nil {
		return "", fmt.Errorf("invalid engine url %q: %w", engineURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("engine url %q has no host", engineURL)
	}
	return u.Host, nil
}

// tailBuffer keeps only the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		tail := make([]byte, t.limit)
		copy(tail, b[len(b)-t.limit:])
		t.buf.Reset()
		t.buf.Write(tail)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
