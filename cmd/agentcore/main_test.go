package main

import "testing"

func TestBuildRootCmdIncludesChat(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["chat"] {
		t.Fatalf("expected \"chat\" subcommand to be registered")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]string{
		"":       "normal",
		"normal": "normal",
		"Normal": "normal",
		"plan":   "plan",
		"PLAN":   "plan",
	}
	for in, want := range cases {
		got, err := parseMode(in)
		if err != nil {
			t.Fatalf("parseMode(%q): unexpected error: %v", in, err)
		}
		if string(got) != want {
			t.Fatalf("parseMode(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := parseMode("bogus"); err == nil {
		t.Fatal("expected an error for an unrecognized mode")
	}
}

func TestExitCodeFor(t *testing.T) {
	if code := exitCodeFor(newInvocationError("bad flag")); code != 2 {
		t.Fatalf("expected exit code 2 for an invocation error, got %d", code)
	}
	if code := exitCodeFor(&testErr{}); code != 1 {
		t.Fatalf("expected exit code 1 for any other error, got %d", code)
	}
}

type testErr struct{}

func (e *testErr) Error() string { return "boom" }
