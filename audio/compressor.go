package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/logger"
)

// Config holds preprocessor settings.
type Config struct {
	FFmpegPath  string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath string        `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
	WorkDir     string        `mapstructure:"work_dir" yaml:"work_dir"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Grace       time.Duration `mapstructure:"grace" yaml:"grace"`
}

// ApplyDefaults fills in missing values.
func (c *Config) ApplyDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Minute
	}
	if c.Grace == 0 {
		c.Grace = 5 * time.Second
	}
}

// Options control a single compression run.
type Options struct {
	// BitrateKbps is the target audio bitrate in kbit/s.
	BitrateKbps int
	// SampleRate is the output sample rate in Hz.
	SampleRate int
	// OnProgress, if set, receives monotonic completion percentages in [0,100].
	OnProgress func(pct float64)
}

// DefaultOptions returns the speech-optimized profile: mono output at
// 22050 Hz, capped at 48 kbit/s. Output is always downmixed to one channel
// regardless of options.
func DefaultOptions() Options {
	return Options{
		BitrateKbps: 48,
		SampleRate:  22050,
	}
}

// Compressor shrinks recordings into provider-upload-sized files by shelling
// out to ffmpeg. The zero value is not usable; construct with New.
type Compressor struct {
	cfg Config
	run runFunc
	log *logger.Logger
}

// New verifies that the transcode binaries exist on PATH and returns a
// ready Compressor. A missing binary fails here rather than on the first job.
func New(cfg Config) (*Compressor, error) {
	cfg.ApplyDefaults()
	for _, bin := range []string{cfg.FFmpegPath, cfg.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, errors.CompressionFailed("init", fmt.Errorf("binary %q not found: %w", bin, err))
		}
	}
	return &Compressor{
		cfg: cfg,
		run: runCommand,
		log: logger.Get("audio"),
	}, nil
}

// Compress transcodes src into dst using the given options. Intermediate
// output goes to a transient workspace which is removed whether the run
// succeeds or fails; dst is only written on success.
func (c *Compressor) Compress(ctx context.Context, src, dst string, opts Options) error {
	if opts.BitrateKbps <= 0 || opts.SampleRate <= 0 {
		def := DefaultOptions()
		if opts.BitrateKbps <= 0 {
			opts.BitrateKbps = def.BitrateKbps
		}
		if opts.SampleRate <= 0 {
			opts.SampleRate = def.SampleRate
		}
	}

	total, err := c.Duration(ctx, src)
	if err != nil {
		return err
	}

	ws, err := os.MkdirTemp(c.cfg.WorkDir, "recap-audio-*")
	if err != nil {
		return errors.CompressionFailed("workspace", err)
	}
	defer os.RemoveAll(ws)

	tmpOut := filepath.Join(ws, "out"+filepath.Ext(dst))
	tracker := newProgressTracker(total, opts.OnProgress)

	runCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	_, err = c.run(runCtx, command{
		binary:   c.cfg.FFmpegPath,
		args:     buildArgs(src, tmpOut, opts),
		onStdout: tracker.handleLine,
		grace:    c.cfg.Grace,
	})
	if err != nil {
		return errors.CompressionFailed("transcode", err)
	}
	tracker.finish()

	if err := moveFile(tmpOut, dst); err != nil {
		return errors.CompressionFailed("finalize", err)
	}

	c.log.Debug("audio compressed", logger.Fields(
		logger.FieldOperation, "compress",
		logger.FieldDuration, time.Since(start).Milliseconds(),
		"source_duration", total.String(),
	))
	return nil
}

// Duration probes the playable length of an audio file.
func (c *Compressor) Duration(ctx context.Context, path string) (time.Duration, error) {
	res, err := c.run(ctx, command{
		binary: c.cfg.FFprobePath,
		args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			path,
		},
		grace: c.cfg.Grace,
	})
	if err != nil {
		return 0, errors.CompressionFailed("probe", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(res.stdout)), 64)
	if err != nil || secs <= 0 {
		return 0, errors.CompressionFailed("probe", fmt.Errorf("unparseable duration %q", strings.TrimSpace(string(res.stdout))))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// buildArgs assembles the ffmpeg argv. The output is always mono.
func buildArgs(src, dst string, opts Options) []string {
	return []string{
		"-y",
		"-i", src,
		"-ac", "1",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-b:a", fmt.Sprintf("%dk", opts.BitrateKbps),
		"-progress", "pipe:1",
		"-nostats",
		"-loglevel", "error",
		dst,
	}
}

// moveFile renames src to dst, falling back to a copy when the workspace and
// destination live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
