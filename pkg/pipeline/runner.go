package pipeline

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner executes a short-lived external command. It exists so the
// subprocess-based steps (trim, remux) can be faked in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout
	return cmd.Run()
}
