package local

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/skillsenselab/recap/logger"
)

// ModelState is the lifecycle state of the cached model.
type ModelState int

const (
	// StateUninitialized means no load has been attempted yet.
	StateUninitialized ModelState = iota
	// StateLoading means a load is in flight.
	StateLoading
	// StateReady means the model file is on disk and usable.
	StateReady
	// StateFailed means the last load attempt failed. The next caller
	// retries from scratch.
	StateFailed
)

func (s ModelState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// ModelHandle points at a loaded model file.
type ModelHandle struct {
	// Path is the on-disk location of the model file.
	Path string
	// Name is the model identifier the file serves.
	Name string
}

// loadFunc fetches the model file to dst, reporting download percentages.
// Swappable for tests.
type loadFunc func(ctx context.Context, name, dst string, onProgress func(pct float64)) error

// ModelCache loads the on-device speech model exactly once per process.
// The first caller starts the load and every concurrent caller blocks on the
// same in-flight attempt. A failed attempt is not sticky.
type ModelCache struct {
	mu      sync.Mutex
	state   ModelState
	handle  *ModelHandle
	loadErr error
	done    chan struct{}

	dir  string
	load loadFunc
	log  *logger.Logger
}

// NewModelCache creates a cache storing model files under dir.
func NewModelCache(dir string) *ModelCache {
	return &ModelCache{
		dir:  dir,
		load: downloadModel,
		log:  logger.Get("local"),
	}
}

// State reports the current lifecycle state.
func (c *ModelCache) State() ModelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Get returns the model handle, loading the model if necessary. Concurrent
// callers during a load all receive the outcome of that single attempt; only
// the caller that starts the load receives progress callbacks.
func (c *ModelCache) Get(ctx context.Context, name string, onProgress func(pct float64)) (*ModelHandle, error) {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		if c.handle.Name == name {
			h := c.handle
			c.mu.Unlock()
			return h, nil
		}
		// Different model requested: reload.
		c.state = StateUninitialized
	case StateLoading:
		done := c.done
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
		c.mu.Lock()
		h, err := c.handle, c.loadErr
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return h, nil
	}

	// This caller performs the load.
	c.state = StateLoading
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	handle, err := c.doLoad(ctx, name, onProgress)

	c.mu.Lock()
	c.handle, c.loadErr = handle, err
	if err != nil {
		c.state = StateFailed
	} else {
		c.state = StateReady
	}
	close(done)
	c.mu.Unlock()

	return handle, err
}

func (c *ModelCache) doLoad(ctx context.Context, name string, onProgress func(pct float64)) (*ModelHandle, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("local: model dir: %w", err)
	}
	dst := filepath.Join(c.dir, name+".bin")
	if _, err := os.Stat(dst); err == nil {
		return &ModelHandle{Path: dst, Name: name}, nil
	}

	c.log.Info("loading model", logger.Fields(logger.FieldModel, name))
	if err := c.load(ctx, name, dst, onProgress); err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("local: load model %s: %w", name, err)
	}
	return &ModelHandle{Path: dst, Name: name}, nil
}

// whisper.cpp ggml model mirror.
const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// downloadModel fetches a ggml model file. Writes to a temp file first so a
// partial download never looks like a ready model.
func downloadModel(ctx context.Context, name, dst string, onProgress func(pct float64)) error {
	url := fmt.Sprintf("%s/ggml-%s.bin", modelBaseURL, shortName(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	tmp := dst + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := &progressWriter{w: f, total: resp.ContentLength, report: onProgress}
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// progressWriter reports bytes written as a percentage of total. Servers
// that omit Content-Length get no percentages.
type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	report  func(pct float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.report != nil && p.total > 0 {
		p.report(100 * float64(p.written) / float64(p.total))
	}
	return n, err
}

// shortName strips the provider prefix from a model id, e.g.
// "local-whisper-base" becomes "base".
func shortName(name string) string {
	for _, prefix := range []string{"local-whisper-", "local-"} {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return name[len(prefix):]
		}
	}
	return name
}
