package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHomeContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := HomeFrom(ctx); ok {
		t.Fatal("empty context should carry no home")
	}

	ctx = WithHome(ctx, "/tmp/tasktalk-home")
	got, ok := HomeFrom(ctx)
	if !ok || got != "/tmp/tasktalk-home" {
		t.Fatalf("HomeFrom = %q, %v", got, ok)
	}
	if MustHomeFrom(ctx) != "/tmp/tasktalk-home" {
		t.Fatal("MustHomeFrom mismatch")
	}
}

func TestMustHomeFromPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("MustHomeFrom should panic without a home")
		}
	}()
	MustHomeFrom(context.Background())
}

func TestResolveHomePrecedence(t *testing.T) {
	t.Setenv("TASKTALK_HOME", "/env/home")

	if got, err := ResolveHome("/flag/home"); err != nil || got != "/flag/home" {
		t.Fatalf("override should win: %q %v", got, err)
	}
	if got, err := ResolveHome(""); err != nil || got != "/env/home" {
		t.Fatalf("env should win over default: %q %v", got, err)
	}

	t.Setenv("TASKTALK_HOME", "")
	got, err := ResolveHome("")
	if err != nil {
		t.Fatalf("ResolveHome: %v", err)
	}
	if filepath.Base(got) != ".tasktalk" {
		t.Fatalf("default home should end in .tasktalk: %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()

	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("Addr = %q", s.Server.Addr)
	}
	if s.Database.Driver != "sqlite" {
		t.Fatalf("Driver = %q", s.Database.Driver)
	}
	if s.Model.Provider != "scripted" || s.Model.Timeout != 30*time.Second {
		t.Fatalf("model defaults wrong: %+v", s.Model)
	}
	if s.Agent.HistoryWindow != 20 || s.Agent.SuggestionLimit != 5 {
		t.Fatalf("agent defaults wrong: %+v", s.Agent)
	}
	if s.Agent.ConfirmCreates {
		t.Fatal("creates should not require confirmation by default")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	home := t.TempDir()
	yaml := []byte("server:\n  addr: \"0.0.0.0:9090\"\nmodel:\n  provider: openai\n  model: gpt-4o-mini\n")
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKTALK_DATABASE_DRIVER", "postgres")

	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Server.Addr != "0.0.0.0:9090" {
		t.Fatalf("Addr = %q", s.Server.Addr)
	}
	if s.Model.Provider != "openai" || s.Model.Model != "gpt-4o-mini" {
		t.Fatalf("model not read from file: %+v", s.Model)
	}
	if s.Database.Driver != "postgres" {
		t.Fatalf("env override ignored: %q", s.Database.Driver)
	}
}
