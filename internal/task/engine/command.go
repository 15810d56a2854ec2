package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// outputTail bounds how much command output is kept for error messages.
const outputTail = 512

// CommandTask builds a Task that runs command through /bin/sh -c, in its own
// process. A non-zero exit status, or a timeout, fails the task with the tail
// of the combined output attached.
func CommandTask(name, schedule, command string, timeout time.Duration) Task {
	return Task{
		Name:     name,
		Schedule: schedule,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
			cmd.Env = append(os.Environ(), "CADENCE_JOB="+name)
			cmd.WaitDelay = 5 * time.Second
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out
			if err := cmd.Run(); err != nil {
				if ctx.Err() != nil {
					err = fmt.Errorf("%w (%v)", ctx.Err(), err)
				}
				if tail := tailOf(out.String()); tail != "" {
					return fmt.Errorf("command %q: %w: %s", name, err, tail)
				}
				return fmt.Errorf("command %q: %w", name, err)
			}
			return nil
		},
	}
}

func tailOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= outputTail {
		return s
	}
	return "..." + s[len(s)-outputTail:]
}
