package main

import (
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	defer func() {
		Version, GitCommit, BuildDate = origVersion, origCommit, origDate
	}()

	Version = "0.1.0-test"
	GitCommit = "abc123"
	BuildDate = "2026-10-01"

	cmd, out := newTestCommand()
	versionCmd.Run(cmd, nil)

	for _, want := range []string{
		"Lucid 0.1.0-test",
		"Git Commit: abc123",
		"Build Date: 2026-10-01",
		"Go Version: " + runtime.Version(),
		"OS/Arch: " + runtime.GOOS + "/" + runtime.GOARCH,
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"audit", "batch", "demo", "evaluate", "serve", "validate", "version"}
	got := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("Expected subcommand %q", name)
		}
	}

	auditSubs := make(map[string]bool)
	for _, c := range auditCmd.Commands() {
		auditSubs[c.Name()] = true
	}
	for _, name := range []string{"query", "show", "report", "export", "verify", "prune"} {
		if !auditSubs[name] {
			t.Errorf("Expected audit subcommand %q", name)
		}
	}
}
