// Package gemini implements the insight provider backed by the Gemini API.
// A single generateContent call carries the audio inline and returns both the
// transcript and the extracted insights as one JSON document.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/insight"
)

const (
	// ProviderName is the registered name for the Gemini provider.
	ProviderName = "gemini"

	defaultBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel         = "gemini-2.0-flash"
	defaultTimeout       = 300 * time.Second
	defaultCostPerMinute = 0.8
)

// Config holds configuration for the Gemini provider.
type Config struct {
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Model           string        `mapstructure:"model" yaml:"model"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CostPerMinute   float64       `mapstructure:"cost_per_minute" yaml:"cost_per_minute"`
	UpgradeEligible bool          `mapstructure:"upgrade_eligible" yaml:"upgrade_eligible"`
}

// Provider implements insight.Provider against the Gemini HTTP API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new Gemini insight provider.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CostPerMinute == 0 {
		cfg.CostPerMinute = defaultCostPerMinute
	}
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// Models lists the model identifiers this provider serves.
func (p *Provider) Models() []string {
	return []string{"gemini-2.0-flash", "gemini-1.5-pro"}
}

// CostPerMinute is the credit cost per audio minute.
func (p *Provider) CostPerMinute() float64 { return p.cfg.CostPerMinute }

// IsAvailable checks whether the API answers with the configured key.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

const meetingPrompt = `Transcribe the attached meeting recording, then analyze it. Respond strictly as JSON matching this schema, with no text outside the JSON:
{
  "transcript": "",
  "summary": "",
  "action_items": [],
  "key_topics": [],
  "sentiment": ""
}
Rules: ground every field in the recording only. sentiment is one of "positive", "neutral", "negative". Leave fields empty rather than inventing details.`

// Process sends the audio inline and parses the combined response. Progress
// lands at 90 once the upstream call returns; the caller reports 100 after
// persisting the result.
func (p *Provider) Process(ctx context.Context, req insight.Request) (*insight.Result, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	audioData, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, apperrors.ProviderFailure(ProviderName, fmt.Errorf("read audio file: %w", err))
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: mimeTypeFor(req.AudioPath),
					Data:     base64.StdEncoding.EncodeToString(audioData),
				}},
				{Text: meetingPrompt},
			},
		}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.cfg.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return nil, apperrors.Timeout(ProviderName).WithCause(err)
		}
		return nil, apperrors.ConnectionFailed(ProviderName).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.translateStatus(resp)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, apperrors.ProviderFailure(ProviderName, fmt.Errorf("decode response: %w", err))
	}
	text := gen.text()
	if text == "" {
		return nil, apperrors.ProviderFailure(ProviderName, fmt.Errorf("empty candidates"))
	}

	var payload meetingPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, apperrors.ProviderFailure(ProviderName, fmt.Errorf("unparseable insight JSON: %w", err))
	}
	if req.OnProgress != nil {
		req.OnProgress(90)
	}

	return &insight.Result{
		Transcript:  payload.Transcript,
		Summary:     payload.Summary,
		ActionItems: payload.ActionItems,
		KeyTopics:   payload.KeyTopics,
		Sentiment:   payload.Sentiment,
		Model:       model,
	}, nil
}

func (p *Provider) translateStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return apperrors.RateLimited(ProviderName, parseRetryAfter(resp.Header.Get("Retry-After")), p.cfg.UpgradeEligible)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return apperrors.ConnectionFailed(ProviderName).
			WithCause(fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	default:
		return apperrors.ProviderFailure(ProviderName,
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}
}

func parseRetryAfter(value string) time.Time {
	now := time.Now()
	if value == "" {
		return now.Add(time.Minute)
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if at, err := http.ParseTime(value); err == nil {
		return at
	}
	return now.Add(time.Minute)
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mp3"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/mp4"
	}
}

// --- internal Gemini API types ---

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string `json:"response_mime_type,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type meetingPayload struct {
	Transcript  string   `json:"transcript"`
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
	KeyTopics   []string `json:"key_topics"`
	Sentiment   string   `json:"sentiment"`
}
