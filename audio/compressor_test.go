package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/logger"
)

// stubRunner fakes the transcode binaries. ffprobe calls answer with a fixed
// duration; ffmpeg calls replay canned progress lines and write the output
// file, or fail.
type stubRunner struct {
	durationSecs  float64
	progressLines []string
	failTranscode bool
	lastArgs      []string
}

func (s *stubRunner) run(_ context.Context, cmd command) (*runResult, error) {
	if cmd.onStdout == nil {
		// probe path
		return &runResult{stdout: []byte(fmt.Sprintf("%f\n", s.durationSecs))}, nil
	}
	s.lastArgs = cmd.args
	for _, line := range s.progressLines {
		cmd.onStdout(line)
	}
	if s.failTranscode {
		return &runResult{exitCode: 1, stderr: []byte("Invalid data found")}, fmt.Errorf("audio: exit code 1")
	}
	out := cmd.args[len(cmd.args)-1]
	if err := os.WriteFile(out, []byte("compressed"), 0o644); err != nil {
		return nil, err
	}
	return &runResult{}, nil
}

func newTestCompressor(t *testing.T, stub *stubRunner) *Compressor {
	t.Helper()
	cfg := Config{WorkDir: t.TempDir()}
	cfg.ApplyDefaults()
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		t.Fatalf("mkdir work dir: %v", err)
	}
	return &Compressor{cfg: cfg, run: stub.run, log: logger.Get("audio")}
}

func TestCompressDefaultArgs(t *testing.T) {
	stub := &stubRunner{durationSecs: 60}
	c := newTestCompressor(t, stub)

	dst := filepath.Join(t.TempDir(), "out.m4a")
	if err := c.Compress(context.Background(), "in.wav", dst, DefaultOptions()); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	want := map[string]string{
		"-ac":  "1",
		"-ar":  "22050",
		"-b:a": "48k",
	}
	got := map[string]string{}
	for i := 0; i < len(stub.lastArgs)-1; i++ {
		if _, ok := want[stub.lastArgs[i]]; ok {
			got[stub.lastArgs[i]] = stub.lastArgs[i+1]
		}
	}
	for flag, value := range want {
		if got[flag] != value {
			t.Errorf("argv flag %s = %q, want %q (argv %v)", flag, got[flag], value, stub.lastArgs)
		}
	}
	if data, err := os.ReadFile(dst); err != nil || string(data) != "compressed" {
		t.Errorf("output file not written: data=%q err=%v", data, err)
	}
}

func TestCompressProgressMonotonic(t *testing.T) {
	stub := &stubRunner{
		durationSecs: 100,
		progressLines: []string{
			"frame=10",
			"out_time_us=10000000",
			"out_time_us=30000000",
			"out_time_us=20000000", // rewind, must be dropped
			"out_time_us=30000000", // duplicate, must be dropped
			"out_time=00:01:30.000000",
			"out_time_us=200000000", // past the end, clamped below 100
			"progress=end",
		},
	}
	c := newTestCompressor(t, stub)

	var got []float64
	opts := DefaultOptions()
	opts.OnProgress = func(pct float64) { got = append(got, pct) }

	dst := filepath.Join(t.TempDir(), "out.m4a")
	if err := c.Compress(context.Background(), "in.wav", dst, opts); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	if len(got) == 0 {
		t.Fatal("no progress reported")
	}
	prev := -1.0
	for i, pct := range got {
		if pct <= prev {
			t.Errorf("progress[%d] = %v, not greater than previous %v", i, pct, prev)
		}
		if pct < 0 || pct > 100 {
			t.Errorf("progress[%d] = %v out of [0,100]", i, pct)
		}
		prev = pct
	}
	if got[len(got)-1] != 100 {
		t.Errorf("final progress = %v, want 100", got[len(got)-1])
	}
	// Only the strictly increasing samples plus the final 100 survive.
	wantSeq := []float64{10, 30, 90, 99, 100}
	if len(got) != len(wantSeq) {
		t.Fatalf("progress sequence = %v, want %v", got, wantSeq)
	}
	for i := range wantSeq {
		if got[i] != wantSeq[i] {
			t.Errorf("progress[%d] = %v, want %v", i, got[i], wantSeq[i])
		}
	}
}

func TestCompressFailureCleansWorkspace(t *testing.T) {
	stub := &stubRunner{durationSecs: 60, failTranscode: true}
	c := newTestCompressor(t, stub)

	dst := filepath.Join(t.TempDir(), "out.m4a")
	err := c.Compress(context.Background(), "in.wav", dst, DefaultOptions())
	if err == nil {
		t.Fatal("Compress() expected error")
	}
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeCompression {
		t.Errorf("error code = %s, want %s", code, apperrors.ErrCodeCompression)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Errorf("destination should not exist after failure, stat err = %v", statErr)
	}
	assertWorkspaceEmpty(t, c.cfg.WorkDir)
}

func TestCompressSuccessCleansWorkspace(t *testing.T) {
	stub := &stubRunner{durationSecs: 60}
	c := newTestCompressor(t, stub)

	dst := filepath.Join(t.TempDir(), "out.m4a")
	if err := c.Compress(context.Background(), "in.wav", dst, DefaultOptions()); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	assertWorkspaceEmpty(t, c.cfg.WorkDir)
}

func assertWorkspaceEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("workspace not cleaned, leftover entries: %v", names)
	}
}

func TestDurationProbe(t *testing.T) {
	stub := &stubRunner{durationSecs: 123.5}
	c := newTestCompressor(t, stub)

	d, err := c.Duration(context.Background(), "in.wav")
	if err != nil {
		t.Fatalf("Duration() error = %v", err)
	}
	if want := 123500 * time.Millisecond; d != want {
		t.Errorf("Duration() = %v, want %v", d, want)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"00:01:30.000000", 90 * time.Second, false},
		{"01:00:00.500000", time.Hour + 500*time.Millisecond, false},
		{"garbage", 0, true},
		{"00:01", 0, true},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseClock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
