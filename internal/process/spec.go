package process

import (
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/interpctl/internal/logger"
)

// Spec describes one interpreter process.
type Spec struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`  // shell-ish command line
	WorkDir string        `json:"work_dir"` // optional working dir
	Env     []string      `json:"env"`      // KEY=VALUE pairs appended to the daemon's environment
	PIDFile string        `json:"pid_file"` // marker file; written on start, removed on exit
	Log     logger.Config `json:"log"`
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process name is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("process command is required")
	}
	return nil
}

// DefaultStopWait bounds how long Stop waits after SIGTERM before SIGKILL.
const DefaultStopWait = 3 * time.Second

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if script, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", script)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// parseExplicitShell strips a leading "sh -c" and one pair of quotes around the script.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
