package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/mpataki/foundry/internal/models"
)

// Output beyond this many bytes is dropped from the head of the log.
const maxOutput = 256 << 10

type processResult struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// runShell runs command through sh in dir. The whole process group is
// killed when ctx ends, so compilers and test runners never outlive the
// stage. A ctx deadline is reported as models.ErrTimeout.
func runShell(ctx context.Context, dir, command string, env []string) (*processResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Kill the process group to ensure child processes are also killed
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := &processResult{
		Output:   tail(out.String(), maxOutput),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %s", models.ErrTimeout, command)
		}
		return res, fmt.Errorf("%w: %s", models.ErrCancelled, command)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("failed to run %q: %w", command, err)
	}
	return res, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
