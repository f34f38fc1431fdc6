package local

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// whisperBinary is the whisper.cpp CLI used for on-device transcription.
var whisperBinary = "whisper-cli"

// runWhisper shells out to whisper.cpp and returns the transcript text.
// Progress lines on stderr of the form "progress = N%" are forwarded.
func runWhisper(ctx context.Context, model *ModelHandle, audioPath string, onProgress func(pct float64)) (string, error) {
	outDir, err := os.MkdirTemp("", "recap-whisper-*")
	if err != nil {
		return "", fmt.Errorf("local: workspace: %w", err)
	}
	defer os.RemoveAll(outDir)

	outPrefix := filepath.Join(outDir, "transcript")
	cmd := exec.CommandContext(ctx, whisperBinary,
		"-m", model.Path,
		"-f", audioPath,
		"-otxt",
		"-of", outPrefix,
		"--print-progress",
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("local: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("local: start %s: %w", whisperBinary, err)
	}

	var tail bytes.Buffer
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		tail.WriteString(line)
		tail.WriteByte('\n')
		if pct, ok := parseWhisperProgress(line); ok && onProgress != nil {
			onProgress(pct)
		}
	}
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("local: %s failed: %s: %w", whisperBinary, lastLines(tail.String(), 3), err)
	}

	text, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", fmt.Errorf("local: read transcript: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}

// parseWhisperProgress extracts the percentage from whisper.cpp progress
// lines, e.g. "whisper_print_progress_callback: progress =  15%".
func parseWhisperProgress(line string) (float64, bool) {
	idx := strings.Index(line, "progress =")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len("progress ="):])
	rest = strings.TrimSuffix(rest, "%")
	pct, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
