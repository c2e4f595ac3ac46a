package claudecli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/chat"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds one CLI run
	DefaultTimeout = 300 * time.Second

	versionTimeout   = 10 * time.Second
	waitDelay        = 5 * time.Second
	maxStderrInError = 500
	promptPreviewLen = 100
	skipPermissions  = "--dangerously-skip-permissions"
)

// Config describes how to launch the external CLI
type Config struct {
	Command         string
	Args            []string
	Timeout         time.Duration
	WorkDir         string
	SkipPermissions bool
	Env             map[string]string
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	workDir, _ := os.UserHomeDir()
	return Config{
		Command:         "claude",
		Args:            []string{"--print"},
		Timeout:         DefaultTimeout,
		WorkDir:         workDir,
		SkipPermissions: true,
	}
}

// defaultEnv keeps the CLI quiet and bounded
var defaultEnv = map[string]string{
	"NODE_ENV":                 "production",
	"NODE_OPTIONS":             "--max-old-space-size=512",
	"CLAUDE_DISABLE_TELEMETRY": "1",
	"CLAUDE_DISABLE_ANALYTICS": "1",
}

// Invoker runs the CLI once per call. It holds no per-request state and is
// safe for concurrent use.
type Invoker struct {
	command         string
	args            []string
	timeout         time.Duration
	workDir         string
	skipPermissions bool
	env             []string
}

// NewInvoker creates an invoker from cfg, filling zero values with defaults
func NewInvoker(cfg Config) *Invoker {
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Invoker{
		command:         cfg.Command,
		args:            append([]string(nil), cfg.Args...),
		timeout:         cfg.Timeout,
		workDir:         cfg.WorkDir,
		skipPermissions: cfg.SkipPermissions,
		env:             buildEnv(os.Environ(), cfg.Env),
	}
}

// buildEnv layers the quiet-mode defaults and then the configured extras on
// top of base. exec.Cmd keeps the last value of a duplicated key.
func buildEnv(base []string, extra map[string]string) []string {
	env := append([]string(nil), base...)
	for _, layer := range []map[string]string{defaultEnv, extra} {
		keys := make([]string, 0, len(layer))
		for k := range layer {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+layer[k])
		}
	}
	return env
}

// Timeout returns the wall-clock limit applied to each run
func (i *Invoker) Timeout() time.Duration {
	return i.timeout
}

// BuildArgs returns the argv (without the command) for one invocation. The
// prompt follows "--" so it is never parsed as a flag.
func (i *Invoker) BuildArgs(inv *chat.Invocation) []string {
	args := make([]string, 0, len(i.args)+5)
	args = append(args, i.args...)
	args = append(args, "--model", inv.CLIModel)
	if i.skipPermissions {
		args = append(args, skipPermissions)
	}
	return append(args, "--", inv.Prompt)
}

// Run executes the CLI for inv and returns its captured output
func (i *Invoker) Run(ctx context.Context, inv *chat.Invocation) (*chat.RunResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"model":     inv.Alias,
		"cli_model": inv.CLIModel,
		"command":   i.command,
	})
	logger.WithField("prompt_preview", preview(inv.Prompt)).Debug("Executing CLI")

	start := time.Now()
	stdout, stderr, exitCode, err := i.execute(ctx, i.timeout, i.BuildArgs(inv))
	duration := time.Since(start)

	logger = logger.WithFields(logrus.Fields{
		"exit_code":   exitCode,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		logger.WithError(err).Error("CLI run failed")
		return nil, err
	}

	logger.Info("CLI run completed")
	return &chat.RunResult{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// Version runs "<command> --version" and returns the first output line
func (i *Invoker) Version(ctx context.Context) (string, error) {
	stdout, _, _, err := i.execute(ctx, versionTimeout, []string{"--version"})
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(stdout), "\n")
	return strings.TrimSpace(line), nil
}

// execute starts the command in its own process group and waits for it. On
// timeout or cancellation the whole group is killed before exec returns, and
// after any exit the rest of the group is killed too.
func (i *Invoker) execute(ctx context.Context, timeout time.Duration, args []string) (string, string, int, error) {
	if err := checkWorkDir(i.workDir); err != nil {
		return "", "", -1, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, i.command, args...)
	cmd.Dir = i.workDir
	cmd.Env = i.env
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	// Files rather than pipes: Wait returns when the CLI exits even if a
	// helper it spawned still holds the descriptors.
	stdout, err := newCaptureFile("stdout")
	if err != nil {
		return "", "", -1, err
	}
	defer closeCapture(stdout)
	stderr, err := newCaptureFile("stderr")
	if err != nil {
		return "", "", -1, err
	}
	defer closeCapture(stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return "", "", -1, i.startError(err)
	}

	waitErr := cmd.Wait()
	killProcessGroup(cmd)

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	outText, err := readCapture(stdout)
	if err != nil {
		return "", "", exitCode, err
	}
	errText, err := readCapture(stderr)
	if err != nil {
		return "", "", exitCode, err
	}

	if waitErr == nil || (errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success()) {
		return outText, errText, exitCode, nil
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", "", exitCode, fmt.Errorf("%w: %s did not finish within %s", chat.ErrUpstreamTimeout, i.command, timeout)
		}
		return "", "", exitCode, fmt.Errorf("cli run canceled: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		detail := strings.TrimSpace(errText)
		if detail == "" {
			detail = "no stderr output"
		}
		return "", "", exitCode, &chat.ExitError{Code: exitCode, Detail: truncate(detail, maxStderrInError)}
	}

	return "", "", exitCode, fmt.Errorf("%w: wait: %v", chat.ErrUpstreamFailure, waitErr)
}

// startError classifies a failure to launch the command. Only a missing
// executable is ExecutableNotFound.
func (i *Invoker) startError(err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s: %v", chat.ErrExecutableNotFound, i.command, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s is not executable: %v", chat.ErrUpstreamFailure, i.command, err)
	default:
		return fmt.Errorf("%w: start %s: %v", chat.ErrUpstreamFailure, i.command, err)
	}
}

// checkWorkDir reports a missing working directory before exec, where it
// would surface as the same ENOENT as a missing executable
func checkWorkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: working directory: %v", chat.ErrUpstreamFailure, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: working directory %s is not a directory", chat.ErrUpstreamFailure, dir)
	}
	return nil
}

// newCaptureFile returns an unlinked temp file for one output stream
func newCaptureFile(name string) (*os.File, error) {
	f, err := os.CreateTemp("", "claude-"+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("create %s capture file: %w", name, err)
	}
	return f, nil
}

func closeCapture(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}

func readCapture(f *os.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", f.Name(), err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func preview(prompt string) string {
	return truncate(prompt, promptPreviewLen)
}
