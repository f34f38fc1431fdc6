package audio

import (
	"strconv"
	"strings"
	"time"
)

// progressTracker converts ffmpeg -progress key=value lines into monotonic
// percentage callbacks. ffmpeg occasionally repeats or rewinds its out_time
// counter when seeking; those samples are dropped so consumers only ever see
// non-decreasing values.
type progressTracker struct {
	total time.Duration
	last  float64
	fn    func(pct float64)
}

func newProgressTracker(total time.Duration, fn func(pct float64)) *progressTracker {
	return &progressTracker{total: total, fn: fn}
}

// handleLine consumes one line of -progress pipe:1 output.
func (t *progressTracker) handleLine(line string) {
	if t.fn == nil || t.total <= 0 {
		return
	}
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}

	var elapsed time.Duration
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds in current ffmpeg releases.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		elapsed = time.Duration(us) * time.Microsecond
	case "out_time":
		d, err := parseClock(value)
		if err != nil {
			return
		}
		elapsed = d
	default:
		return
	}

	pct := float64(elapsed) / float64(t.total) * 100
	// Hold back 100 until the process has actually exited.
	if pct > 99 {
		pct = 99
	}
	if pct <= t.last {
		return
	}
	t.last = pct
	t.fn(pct)
}

// finish reports completion. Called once after a successful run.
func (t *progressTracker) finish() {
	if t.fn == nil || t.last >= 100 {
		return
	}
	t.last = 100
	t.fn(100)
}

// parseClock parses ffmpeg clock timestamps of the form HH:MM:SS.micros.
func parseClock(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, strconv.ErrSyntax
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), nil
}
