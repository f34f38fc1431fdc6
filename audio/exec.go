package audio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// command configures a transcoder subprocess.
type command struct {
	binary string
	args   []string
	// onStdout receives each stdout line as it is produced. ffmpeg progress
	// reporting writes key=value lines to pipe:1.
	onStdout func(line string)
	// grace is how long to wait after SIGTERM before SIGKILL.
	grace time.Duration
}

// runResult holds the output and status of a completed subprocess.
type runResult struct {
	stdout   []byte
	stderr   []byte
	exitCode int
	duration time.Duration
}

// runFunc executes a subprocess. It is a field on Compressor so tests can
// substitute a stub engine.
type runFunc func(ctx context.Context, cmd command) (*runResult, error)

// runCommand executes a subprocess and waits for it to complete. If the
// context is canceled, SIGTERM is sent first, then SIGKILL after the grace
// period. The whole process group is signaled so ffmpeg child processes die
// with it.
func runCommand(ctx context.Context, cmd command) (*runResult, error) {
	if cmd.binary == "" {
		return nil, fmt.Errorf("audio: binary is required")
	}

	grace := cmd.grace
	if grace == 0 {
		grace = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.binary, cmd.args...) //nolint:gosec // transcode args are built internally
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace

	var stderr bytes.Buffer
	c.Stderr = &stderr

	var stdout bytes.Buffer
	if cmd.onStdout != nil {
		pipe, err := c.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("audio: stdout pipe: %w", err)
		}
		if err := c.Start(); err != nil {
			return nil, fmt.Errorf("audio: start %s: %w", cmd.binary, err)
		}

		start := time.Now()
		scanner := bufio.NewScanner(pipe)
		for scanner.Scan() {
			line := scanner.Text()
			stdout.WriteString(line)
			stdout.WriteByte('\n')
			cmd.onStdout(line)
		}
		err = c.Wait()
		return finishRun(ctx, c, stdout.Bytes(), stderr.Bytes(), time.Since(start), err)
	}

	c.Stdout = &stdout
	start := time.Now()
	err := c.Run()
	return finishRun(ctx, c, stdout.Bytes(), stderr.Bytes(), time.Since(start), err)
}

func finishRun(ctx context.Context, c *exec.Cmd, stdout, stderr []byte, elapsed time.Duration, err error) (*runResult, error) {
	result := &runResult{
		stdout:   stdout,
		stderr:   stderr,
		exitCode: c.ProcessState.ExitCode(),
		duration: elapsed,
	}
	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("audio: killed by context: %w", ctx.Err())
		}
		return result, fmt.Errorf("audio: exit code %d: %s: %w", result.exitCode, bytes.TrimSpace(stderr), err)
	}
	return result, nil
}
