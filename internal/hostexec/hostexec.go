// Package hostexec runs host commands for provisioning and service control.
package hostexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCommandFailed wraps every non-zero exit or failure to start.
var ErrCommandFailed = errors.New("command failed")

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// DefaultWaitDelay bounds how long Run waits for output after the command
// exits or is killed. Children that inherit stdout and outlive the command
// would otherwise keep Run blocked.
const DefaultWaitDelay = 5 * time.Second

// maxLogLine caps a single debug log line; longer output is split.
const maxLogLine = 64 * 1024

// ExecRunner runs commands on the local host.
type ExecRunner struct {
	Timeout   time.Duration
	WaitDelay time.Duration
	Log       logrus.FieldLogger
}

// NewExecRunner creates an ExecRunner. A zero timeout means no limit
// beyond ctx.
func NewExecRunner(timeout time.Duration, log logrus.FieldLogger) *ExecRunner {
	return &ExecRunner{Timeout: timeout, WaitDelay: DefaultWaitDelay, Log: log}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmdline := CommandLine(name, args...)
	log := r.Log.WithField("cmd", cmdline)
	log.Debug("running command")

	// One writer for both streams, so exec shares a single pipe and
	// never calls Write concurrently.
	w := &lineWriter{log: log}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	err := cmd.Run()
	w.flush()
	out := w.out.String()

	if errors.Is(err, exec.ErrWaitDelay) && ctx.Err() == nil {
		// The command itself succeeded; a leftover child still held the pipe.
		log.Warn("command exited but its output was still open; discarded the rest")
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%w: %s: %v", ErrCommandFailed, cmdline, ctx.Err())
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return out, fmt.Errorf("%w: %s: %v", ErrCommandFailed, cmdline, err)
		}
		return out, fmt.Errorf("%w: %s (exit %d)", ErrCommandFailed, cmdline, exitCode)
	}
	return out, nil
}

// lineWriter keeps the full output and logs it line by line at debug level.
// It never stops consuming, whatever the line length.
type lineWriter struct {
	log     logrus.FieldLogger
	out     strings.Builder
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.out.Write(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.log.Debug(string(w.pending[:i]))
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) > maxLogLine {
		w.log.Debug(string(w.pending))
		w.pending = nil
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.pending) > 0 {
		w.log.Debug(string(w.pending))
		w.pending = nil
	}
}

// DryRunRunner logs commands instead of running them.
type DryRunRunner struct {
	Log logrus.FieldLogger
}

func (r *DryRunRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.Log.WithField("cmd", CommandLine(name, args...)).Info("dry-run: would run")
	return "", nil
}

// Sudo runs name through sudo.
func Sudo(ctx context.Context, r Runner, name string, args ...string) (string, error) {
	return r.Run(ctx, "sudo", append([]string{name}, args...)...)
}

// WritePrivileged places content at dest with the given mode. The content is
// staged in a private temp file and moved into place with `sudo install`,
// so dest may live in a directory the caller cannot write.
func WritePrivileged(ctx context.Context, r Runner, content []byte, dest string, mode os.FileMode) error {
	tmp, err := os.CreateTemp("", "trp-api-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if _, err := Sudo(ctx, r, "install", "-m", fmt.Sprintf("%04o", mode.Perm()), tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to install %s: %w", dest, err)
	}
	return nil
}

// IsRoot checks if running as root user.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CommandLine joins a command for logs and errors.
func CommandLine(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
