// Package client is the Go SDK for the recap HTTP API. It wraps the JSON
// endpoints with typed calls and implements the polling loop consumers use to
// wait for a submission to finish.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/job"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the recap server root, e.g. "http://localhost:8080".
	BaseURL string
	// Token is the Bearer token attached to every request.
	Token string
	// Timeout bounds a single HTTP request. Defaults to 2 minutes so large
	// uploads survive slow links.
	Timeout time.Duration
	// PollInterval is the wait between status polls. Defaults to 3 seconds.
	PollInterval time.Duration
}

// Client talks to a recap server.
type Client struct {
	baseURL      string
	token        string
	http         *http.Client
	pollInterval time.Duration
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		http:         &http.Client{Timeout: cfg.Timeout},
		pollInterval: cfg.PollInterval,
	}
}

// ProviderInfo describes one insight provider as reported by the server.
type ProviderInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Models        []string `json:"models"`
	CostPerMinute float64  `json:"cost_per_minute"`
	Connected     bool     `json:"connected"`
	Default       bool     `json:"default"`
}

// ProviderList is the /providers response.
type ProviderList struct {
	Providers       []ProviderInfo `json:"providers"`
	DefaultProvider string         `json:"default_provider"`
}

// CreditEntry is one ledger movement.
type CreditEntry struct {
	ID          string    `json:"id"`
	Amount      int       `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreditSummary is the /credits response.
type CreditSummary struct {
	Balance int           `json:"balance"`
	Entries []CreditEntry `json:"entries"`
}

// UploadRecording uploads an audio file and returns the created pending job.
func (c *Client) UploadRecording(ctx context.Context, path, model string) (*job.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	if err := w.WriteField("model", model); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out job.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", &buf, w.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitJob submits a pending job for processing. model may be empty to use
// the job's stored model.
func (c *Client) SubmitJob(ctx context.Context, id, model string) (*job.Job, error) {
	return c.postJob(ctx, fmt.Sprintf("/api/v1/jobs/%s/submit", id), model)
}

// ReprocessJob re-runs a completed job, optionally with a different model.
func (c *Client) ReprocessJob(ctx context.Context, id, model string) (*job.Job, error) {
	return c.postJob(ctx, fmt.Sprintf("/api/v1/jobs/%s/reprocess", id), model)
}

// CancelJob cancels a processing job.
func (c *Client) CancelJob(ctx context.Context, id string) (*job.Job, error) {
	return c.postJob(ctx, fmt.Sprintf("/api/v1/jobs/%s/cancel", id), "")
}

// GetJob fetches the current job view.
func (c *Client) GetJob(ctx context.Context, id string) (*job.Job, error) {
	var out job.Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+id, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Providers lists the configured insight providers.
func (c *Client) Providers(ctx context.Context) (*ProviderList, error) {
	var out ProviderList
	if err := c.do(ctx, http.MethodGet, "/api/v1/providers", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Credits returns the balance and recent ledger entries.
func (c *Client) Credits(ctx context.Context) (*CreditSummary, error) {
	var out CreditSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/credits", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForCompletion polls the job until it reaches a terminal status or ctx
// is done. onPoll, when non-nil, observes every fetched view.
func (c *Client) WaitForCompletion(ctx context.Context, id string, onPoll func(*job.Job)) (*job.Job, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		j, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(j)
		}
		if j.Status.Terminal() {
			return j, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) postJob(ctx context.Context, path, model string) (*job.Job, error) {
	var body io.Reader
	contentType := ""
	if model != "" {
		data, err := json.Marshal(map[string]string{"model": model})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	var out job.Job
	if err := c.do(ctx, http.MethodPost, path, body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a request and decodes the data envelope into out. Error
// responses are rebuilt into AppErrors so callers can branch on the code.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.ConnectionFailed("recap").WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func decodeError(status int, raw []byte) error {
	var envelope apperrors.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return &apperrors.AppError{
			Code:       apperrors.ErrCodeInternal,
			Message:    fmt.Sprintf("server returned status %d", status),
			HTTPStatus: status,
		}
	}
	return &apperrors.AppError{
		Code:       envelope.Error.Code,
		Message:    envelope.Error.Message,
		Retryable:  envelope.Error.Retryable,
		Details:    envelope.Error.Details,
		HTTPStatus: status,
	}
}
