package process_test

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cockpitdev/cockpit/internal/process"
	"github.com/cockpitdev/cockpit/internal/workspace"
)

func TestSpawnShellSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command uses sh -c")
	}
	sup := process.NewSupervisor(nil, time.Second)
	res := sup.Spawn(process.SpawnInput{
		Command: workspace.Command{Kind: workspace.CommandShell, Shell: "echo hello"},
	})
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%q)", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Fatalf("expected stdout to contain hello, got %q", res.Stdout)
	}
}

func TestSpawnNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command uses sh -c")
	}
	sup := process.NewSupervisor(nil, time.Second)
	res := sup.Spawn(process.SpawnInput{
		Command: workspace.Command{Kind: workspace.CommandShell, Shell: "exit 3"},
	})
	if res.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", res.ExitCode)
	}
}

// E8: a process that ignores SIGTERM is force-killed after the timeout.
func TestSpawnTimeoutEscalatesToKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signal escalation is unix-specific")
	}
	sup := process.NewSupervisor(nil, 200*time.Millisecond)
	start := time.Now()
	res := sup.Spawn(process.SpawnInput{
		Command: workspace.Command{
			Kind:  workspace.CommandShell,
			Shell: "trap '' TERM; sleep 30",
		},
		Timeout: 100 * time.Millisecond,
	})
	elapsed := time.Since(start)
	if !res.Killed {
		t.Fatal("expected process to be marked killed")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected kill escalation well under 2s, took %s", elapsed)
	}
}

func TestSpawnMissingCommandKind(t *testing.T) {
	sup := process.NewSupervisor(nil, time.Second)
	res := sup.Spawn(process.SpawnInput{Command: workspace.Command{}})
	if res.ExitCode != 1 {
		t.Fatalf("expected exit 1 for an unrecognized command kind, got %d", res.ExitCode)
	}
}

func TestSpawnExtraArgsAppendToShellString(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command uses sh -c")
	}
	sup := process.NewSupervisor(nil, time.Second)
	res := sup.Spawn(process.SpawnInput{
		Command:   workspace.Command{Kind: workspace.CommandShell, Shell: "echo hi"},
		ExtraArgs: []string{"--flag", "value"},
	})
	if strings.TrimSpace(res.Stdout) != "hi --flag value" {
		t.Fatalf("expected extra args appended to shell string, got %q", res.Stdout)
	}
}

func TestSpawnExtraArgsAppendToShellListLastElement(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command uses sh -c")
	}
	sup := process.NewSupervisor(nil, time.Second)
	res := sup.Spawn(process.SpawnInput{
		Command:   workspace.Command{Kind: workspace.CommandShellList, ShellList: []string{"echo first", "echo second"}},
		ExtraArgs: []string{"--flag"},
	})
	if strings.TrimSpace(res.Stdout) != "first\nsecond --flag" {
		t.Fatalf("expected extra args appended to the last shell list element, got %q", res.Stdout)
	}
}

func TestSpawnExtraArgsAppendToExplicitArgs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/echo")
	}
	sup := process.NewSupervisor(nil, time.Second)
	res := sup.Spawn(process.SpawnInput{
		Command:   workspace.Command{Kind: workspace.CommandExplicit, Program: "echo", Args: []string{"a"}},
		ExtraArgs: []string{"b"},
	})
	if strings.TrimSpace(res.Stdout) != "a b" {
		t.Fatalf("expected extra args appended to explicit args, got %q", res.Stdout)
	}
}

func TestSpawnEnvOverlayWins(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell command uses sh -c")
	}
	sup := process.NewSupervisor(nil, time.Second)
	res := sup.Spawn(process.SpawnInput{
		Command: workspace.Command{Kind: workspace.CommandShell, Shell: "echo $FORCE_COLOR"},
		Env:     map[string]string{"FORCE_COLOR": "0"},
	})
	if strings.TrimSpace(res.Stdout) != "0" {
		t.Fatalf("expected task env to override baseline FORCE_COLOR, got %q", res.Stdout)
	}
}
