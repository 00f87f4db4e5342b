// Package simulator answers a small fixed set of commands locally when no
// server connection exists.
package simulator

import (
	"errors"
	"fmt"
	"time"

	"webterm/internal/ports"
)

// ErrUnavailable is returned for commands outside the offline table.
var ErrUnavailable = errors.New("command unavailable without a server connection")

// fixedOutputs holds the commands whose output never changes.
var fixedOutputs = map[string]string{
	"ls":         "architecture_plan.md  final_report.md  problem_analysis.md  screenshots  todo.md  web-terminal-backend",
	"pwd":        "/home/ubuntu",
	"whoami":     "ubuntu",
	"echo hello": "hello",
}

// Simulator answers offline commands. Only "date" depends on the clock.
type Simulator struct {
	clock ports.Clock
}

// New creates a simulator reading the time from clock.
func New(clock ports.Clock) *Simulator {
	return &Simulator{clock: clock}
}

// Run returns the output for command without a trailing newline, or an
// error wrapping ErrUnavailable.
func (s *Simulator) Run(command string) (string, error) {
	if command == "date" {
		return s.clock.Now().Format(time.UnixDate), nil
	}
	if out, ok := fixedOutputs[command]; ok {
		return out, nil
	}
	return "", fmt.Errorf("%q: %w", command, ErrUnavailable)
}

// Commands lists the commands the simulator knows.
func Commands() []string {
	return []string{"ls", "pwd", "whoami", "date", "echo hello"}
}
