package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"run", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRunCmdRequiresConfiguredProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cmd := buildRootCmd()
	cmd.SetArgs([]string{"run", "--provider", "anthropic", "hello"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an error when no provider credentials are configured")
	}
}
