package process

import (
	"strings"
	"testing"
)

// An explicit "sh -c" must not be wrapped in another shell.
func TestBuildCommand_ExplicitShellNoDoubleWrap(t *testing.T) {
	requireUnix(t)
	s := Spec{Name: "x", Command: "sh -c 'echo hi'"}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 3 || cmd.Args[1] != "-c" {
		t.Fatalf("unexpected argv: %#v", cmd.Args)
	}
	if cmd.Args[2] != "echo hi" {
		t.Fatalf("quotes not stripped: %q", cmd.Args[2])
	}
	if strings.HasPrefix(cmd.Args[2], "sh -c ") {
		t.Fatalf("command was double-wrapped: %q", cmd.Args[2])
	}
}

func TestBuildCommand_MetacharTriggersShell(t *testing.T) {
	requireUnix(t)
	s := Spec{Name: "y", Command: "echo hi | wc -c"}
	cmd := s.BuildCommand()
	if len(cmd.Args) < 3 || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell -c wrapping, got argv=%#v", cmd.Args)
	}
}

func TestBuildCommand_SimpleCommand(t *testing.T) {
	s := Spec{Name: "z", Command: "  python3 -m zeppelin  "}
	cmd := s.BuildCommand()
	want := []string{"python3", "-m", "zeppelin"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("argv=%#v", cmd.Args)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Fatalf("argv[%d]=%q want %q", i, cmd.Args[i], want[i])
		}
	}
}

func TestBuildCommand_EmptyCommand(t *testing.T) {
	requireUnix(t)
	cmd := Spec{Name: "e"}.BuildCommand()
	if cmd.Path != "/bin/true" {
		t.Fatalf("expected /bin/true, got %q", cmd.Path)
	}
}

func TestParseExplicitShell(t *testing.T) {
	cases := []struct {
		in     string
		script string
		ok     bool
	}{
		{"sh -c 'echo a'", "echo a", true},
		{"/bin/sh -c \"echo b\"", "echo b", true},
		{"  /usr/bin/sh -c echo c", "echo c", true},
		{"bash -c 'echo d'", "", false},
		{"echo sh -c", "", false},
	}
	for _, c := range cases {
		got, ok := parseExplicitShell(c.in)
		if ok != c.ok || got != c.script {
			t.Errorf("parseExplicitShell(%q) = %q,%v want %q,%v", c.in, got, ok, c.script, c.ok)
		}
	}
}
