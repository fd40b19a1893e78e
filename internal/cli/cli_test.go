package cli

import (
	"bytes"
	"strings"
	"testing"
)

// runCommand executes the root command against an isolated home directory and
// returns combined output.
func runCommand(t *testing.T, home string, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--home", home}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("tasktalk %s: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

func TestTaskLifecycle(t *testing.T) {
	home := t.TempDir()

	out := runCommand(t, home, "task", "add", "write release notes", "--priority", "high")
	if !strings.Contains(out, "Created task #1") {
		t.Fatalf("add output: %q", out)
	}

	out = runCommand(t, home, "task", "list")
	if !strings.Contains(out, "write release notes") || !strings.Contains(out, "high") {
		t.Fatalf("list output: %q", out)
	}

	out = runCommand(t, home, "task", "show", "1")
	if !strings.Contains(out, "Status:   pending") {
		t.Fatalf("show output: %q", out)
	}

	out = runCommand(t, home, "task", "done", "1")
	if !strings.Contains(out, "Completed task #1") {
		t.Fatalf("done output: %q", out)
	}

	out = runCommand(t, home, "task", "rm", "1")
	if !strings.Contains(out, "Deleted task #1") {
		t.Fatalf("rm output: %q", out)
	}

	out = runCommand(t, home, "task", "list")
	if !strings.Contains(out, "No tasks.") {
		t.Fatalf("list after rm: %q", out)
	}
}

func TestTaskShowRejectsBadID(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--home", t.TempDir(), "task", "show", "banana"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestChatOneShot(t *testing.T) {
	home := t.TempDir()

	out := runCommand(t, home, "chat", `create a task called "from the cli"`)
	if !strings.Contains(out, "Created task #1") {
		t.Fatalf("chat output: %q", out)
	}

	out = runCommand(t, home, "task", "list")
	if !strings.Contains(out, "from the cli") {
		t.Fatalf("task should exist after chat: %q", out)
	}

	out = runCommand(t, home, "conversation", "list")
	if !strings.Contains(out, "create a task called") {
		t.Fatalf("conversation should be titled from the message: %q", out)
	}
}

func TestDoctor(t *testing.T) {
	out := runCommand(t, t.TempDir(), "doctor")
	if !strings.Contains(out, "All good.") {
		t.Fatalf("doctor output: %q", out)
	}
}
