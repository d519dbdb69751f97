package action

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runs external commands on behalf of the dispatcher and follow job.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type ExecRunner struct {
	Logger *slog.Logger
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.Info("running command", "cmd", name, "args", args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w (output: %q)", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	logger.Debug("command finished", "cmd", name, "output", strings.TrimSpace(out.String()))
	return nil
}

// Splits a configured command line (eg "systemctl stop") into the program and
// its leading arguments.
func ParseCommand(s string) ([]string, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return parts, nil
}
