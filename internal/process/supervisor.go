package process

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cockpitdev/cockpit/internal/workspace"
)

var (
	// ErrMissingCommand is returned when a task's command union carries no
	// recognized kind.
	ErrMissingCommand = errors.New("missing command")

	// ExitCodeOK is the default OK exit code.
	ExitCodeOK = 0

	// ExitCodeError is the default error code returned when the child exits
	// with an error without a more specific code.
	ExitCodeError = 127
)

// OutputFunc receives one chunk of output as it is produced, tagged by
// whether it came from stdout or stderr.
type OutputFunc func(stream string, data []byte)

// Result is the outcome of a single Spawn call. Spawn itself never returns a
// Go error for process-level failure; any failure to even start the command
// is folded into Result so a single call site can interpret both outcomes
// uniformly.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Killed   bool
	Duration time.Duration
}

// SpawnInput bundles what Spawn needs to run one task's command.
type SpawnInput struct {
	Command   workspace.Command
	ExtraArgs []string
	Env       map[string]string
	Cwd       string
	Timeout   time.Duration
	OnOutput  OutputFunc
}

// Supervisor spawns and supervises child processes with a graceful
// SIGTERM, then forceful SIGKILL, shutdown escalation.
type Supervisor struct {
	logger      hclog.Logger
	killTimeout time.Duration
}

// NewSupervisor creates a Supervisor. killTimeout is how long a process is
// given to exit after SIGTERM before it is force-killed with SIGKILL.
func NewSupervisor(logger hclog.Logger, killTimeout time.Duration) *Supervisor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if killTimeout <= 0 {
		killTimeout = 5 * time.Second
	}
	return &Supervisor{logger: logger.Named("process"), killTimeout: killTimeout}
}

// Spawn normalizes the given command union into an *exec.Cmd, overlays the
// task's environment on top of a color-forcing baseline, and runs it to
// completion (or until ctx-less timeout/kill), streaming output chunks to
// OnOutput as they arrive. Spawn never returns an error: any failure to
// start the command is reported as Result{ExitCode: 1}.
func (s *Supervisor) Spawn(in SpawnInput) *Result {
	start := time.Now()
	cmd, err := buildCmd(in.Command, in.ExtraArgs)
	if err != nil {
		return &Result{ExitCode: 1, Stderr: err.Error(), Duration: time.Since(start)}
	}
	if in.Cwd != "" {
		cmd.Dir = in.Cwd
	}
	cmd.Env = composeEnv(in.Env)
	cmd.Stdin = nil

	var stdoutBuf, stderrBuf bytes.Buffer
	var mu sync.Mutex
	record := func(stream string, buf *bytes.Buffer) func([]byte) {
		return func(p []byte) {
			mu.Lock()
			buf.Write(p)
			mu.Unlock()
			if in.OnOutput != nil {
				cp := make([]byte, len(p))
				copy(cp, p)
				in.OnOutput(stream, cp)
			}
		}
	}
	cmd.Stdout = &callbackWriter{fn: record("stdout", &stdoutBuf)}
	cmd.Stderr = &callbackWriter{fn: record("stderr", &stderrBuf)}

	setSetpgid(cmd, true)

	if startErr := cmd.Start(); startErr != nil {
		return &Result{ExitCode: 1, Stderr: startErr.Error(), Duration: time.Since(start)}
	}

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	killed := false
	var waitErr error
	select {
	case waitErr = <-exitCh:
	case <-time.After(timeout):
		killed = true
		s.terminate(cmd)
		select {
		case waitErr = <-exitCh:
		case <-time.After(s.killTimeout):
			s.logger.Warn("process did not exit after kill escalation", "pid", cmd.Process.Pid)
		}
	}

	exitCode := exitCodeFromError(waitErr)
	return &Result{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Killed:   killed,
		Duration: time.Since(start),
	}
}

// terminate sends SIGTERM and, if the process has not exited within the
// supervisor's killTimeout, escalates to SIGKILL.
func (s *Supervisor) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := signalTerm(cmd); err != nil {
		s.logger.Debug("SIGTERM failed, killing directly", "error", err)
		_ = cmd.Process.Kill()
		return
	}

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.killTimeout):
		s.logger.Debug("SIGTERM timed out, escalating to SIGKILL", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
	}
}

// buildCmd normalizes the command union and extraArgs per spec §4.6: a
// shell-string command becomes command + " " + extraArgs.join(" "); a shell
// list joins extraArgs onto its last element; an explicit record appends
// extraArgs at the tail of args.
func buildCmd(c workspace.Command, extraArgs []string) (*exec.Cmd, error) {
	switch c.Kind {
	case workspace.CommandShell:
		return shellCmd(joinArgs(c.Shell, extraArgs)), nil
	case workspace.CommandShellList:
		parts := append([]string{}, c.ShellList...)
		if len(parts) > 0 && len(extraArgs) > 0 {
			parts[len(parts)-1] = joinArgs(parts[len(parts)-1], extraArgs)
		}
		return shellCmd(joinShellList(parts)), nil
	case workspace.CommandExplicit:
		args := append(append([]string{}, c.Args...), extraArgs...)
		if c.UseShell {
			return shellCmd(joinArgs(c.Program, args)), nil
		}
		return exec.Command(c.Program, args...), nil
	default:
		return nil, ErrMissingCommand
	}
}

func shellCmd(script string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", script)
	}
	return exec.Command("sh", "-c", script)
}

func joinShellList(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " && "
		}
		out += p
	}
	return out
}

func joinArgs(program string, args []string) string {
	out := program
	for _, a := range args {
		out += " " + a
	}
	return out
}

// composeEnv overlays the caller's task environment on top of the parent
// environment, matching the ordering spec §4.6 requires: parent env first,
// then FORCE_COLOR / CLICOLOR_FORCE forced back on regardless of what the
// parent set (TERM is inherited as-is), then the task's own env entries win
// on conflict.
func composeEnv(overlay map[string]string) []string {
	base := map[string]string{"TERM": "xterm-256color"}
	for _, kv := range os.Environ() {
		if idx := indexByte(kv, '='); idx >= 0 {
			base[kv[:idx]] = kv[idx+1:]
		}
	}
	base["FORCE_COLOR"] = "1"
	base["CLICOLOR_FORCE"] = "1"
	for k, v := range overlay {
		base[k] = v
	}
	out := make([]string, 0, len(base))
	for k, v := range base {
		out = append(out, k+"="+v)
	}
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func exitCodeFromError(err error) int {
	if err == nil {
		return ExitCodeOK
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return ExitCodeError
}

// callbackWriter adapts an io.Writer onto a func([]byte) so cmd.Stdout/Stderr
// can stream chunks as they are produced instead of buffering to completion.
type callbackWriter struct {
	fn func([]byte)
}

func (w *callbackWriter) Write(p []byte) (int, error) {
	w.fn(p)
	return len(p), nil
}
