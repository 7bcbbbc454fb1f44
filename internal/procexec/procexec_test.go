package procexec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseCommand_BareProgram(t *testing.T) {
	cmd := ParseCommand("/usr/bin/true", nil)
	if cmd.Shell != "" || cmd.Program != "/usr/bin/true" {
		t.Errorf("ParseCommand(bare) = %+v", cmd)
	}
}

func TestParseCommand_ShellString(t *testing.T) {
	cmd := ParseCommand("echo hello | cat", nil)
	if cmd.Shell == "" {
		t.Errorf("ParseCommand(shell) should select shell form, got %+v", cmd)
	}
}

func TestRun_CapturesStdout(t *testing.T) {
	res, err := Run(context.Background(), Command{Shell: "echo hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hi" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
}

func TestRun_NonZeroExitNotError(t *testing.T) {
	res, err := Run(context.Background(), Command{Shell: "exit 3"})
	if err != nil {
		t.Fatalf("Run should not error on non-zero exit: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestStartKill_GroupKilled(t *testing.T) {
	p, err := Start(Command{Shell: "sleep 5"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	p.Kill()
	res := p.Wait(true)
	if !res.Killed {
		t.Errorf("expected Killed=true")
	}
	if res.Duration > 2*time.Second {
		t.Errorf("process took too long to die after kill: %v", res.Duration)
	}
}

func TestRun_ContextCancelKills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res, err := Run(ctx, Command{Shell: "sleep 5"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Killed {
		t.Errorf("expected process to be killed by context cancellation")
	}
}
