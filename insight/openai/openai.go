// Package openai implements the insight provider backed by the OpenAI API:
// audio transcription via the transcriptions endpoint, then structured
// insight extraction via chat completions with a strict JSON schema.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	apperrors "github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/insight"
)

const (
	// ProviderName is the registered name for the OpenAI provider.
	ProviderName = "openai"

	defaultBaseURL         = "https://api.openai.com/v1"
	defaultTranscribeModel = "gpt-4o-transcribe"
	defaultInsightModel    = "gpt-4o-mini"
	defaultTimeout         = 300 * time.Second
	defaultCostPerMinute   = 1.0
)

// Config holds configuration for the OpenAI provider.
type Config struct {
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	TranscribeModel string        `mapstructure:"transcribe_model" yaml:"transcribe_model"`
	InsightModel    string        `mapstructure:"insight_model" yaml:"insight_model"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CostPerMinute   float64       `mapstructure:"cost_per_minute" yaml:"cost_per_minute"`
	// UpgradeEligible is attached to rate-limit errors so clients can offer
	// a plan upgrade when the quota tier allows one.
	UpgradeEligible bool `mapstructure:"upgrade_eligible" yaml:"upgrade_eligible"`
}

// Provider implements insight.Provider against the OpenAI HTTP API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new OpenAI insight provider.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = defaultTranscribeModel
	}
	if cfg.InsightModel == "" {
		cfg.InsightModel = defaultInsightModel
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
	return []string{"gpt-4o-transcribe", "gpt-4o-mini-transcribe"}
}

// CostPerMinute is the credit cost per audio minute.
func (p *Provider) CostPerMinute() float64 { return p.cfg.CostPerMinute }

// IsAvailable checks whether the API answers with the configured key.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Process transcribes the audio file and extracts structured insights.
// Progress lands at 50 after transcription and 90 after extraction; the
// caller reports 100 once the result is persisted.
func (p *Provider) Process(ctx context.Context, req insight.Request) (*insight.Result, error) {
	model := p.cfg.TranscribeModel
	if req.Model != "" {
		model = req.Model
	}

	transcript, err := p.transcribe(ctx, req.AudioPath, model, req.Language)
	if err != nil {
		return nil, err
	}
	report(req.OnProgress, 50)

	extracted, err := p.extract(ctx, transcript)
	if err != nil {
		return nil, err
	}
	report(req.OnProgress, 90)

	return &insight.Result{
		Transcript:  transcript,
		Summary:     extracted.Summary,
		ActionItems: extracted.ActionItems,
		KeyTopics:   extracted.KeyTopics,
		Sentiment:   extracted.Sentiment,
		Model:       model,
	}, nil
}

func report(fn func(float64), pct float64) {
	if fn != nil {
		fn(pct)
	}
}

func (p *Provider) transcribe(ctx context.Context, audioPath, model, language string) (string, error) {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return "", apperrors.ProviderFailure(ProviderName, fmt.Errorf("read audio file: %w", err))
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", apperrors.Internal(err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", apperrors.Internal(err)
	}
	_ = writer.WriteField("model", model)
	_ = writer.WriteField("response_format", "json")
	if language != "" {
		_ = writer.WriteField("language", language)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", apperrors.Internal(err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", p.translateStatus(resp)
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperrors.ProviderFailure(ProviderName, fmt.Errorf("decode transcription response: %w", err))
	}
	return result.Text, nil
}

const insightPrompt = `You analyze meeting transcripts. Given the transcript below, produce insights strictly as JSON matching this schema, with no extra fields and no text outside the JSON:
{
  "summary": "",
  "action_items": [],
  "key_topics": [],
  "sentiment": ""
}
Rules: ground every field in the transcript only. sentiment is one of "positive", "neutral", "negative". If information is missing, leave fields empty instead of inventing details.

TRANSCRIPT:
`

func (p *Provider) extract(ctx context.Context, transcript string) (*insightPayload, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.InsightModel,
		Messages: []chatMessage{
			{Role: "user", Content: insightPrompt + transcript},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0.2,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.translateStatus(resp)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.ProviderFailure(ProviderName, fmt.Errorf("decode chat response: %w", err))
	}
	if len(result.Choices) == 0 {
		return nil, apperrors.ProviderFailure(ProviderName, fmt.Errorf("empty choices"))
	}

	var payload insightPayload
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &payload); err != nil {
		return nil, apperrors.ProviderFailure(ProviderName, fmt.Errorf("unparseable insight JSON: %w", err))
	}
	return &payload, nil
}

// translateStatus maps a non-2xx upstream response to the error taxonomy.
// The response body is consumed.
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

func translateTransportError(err error) error {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Timeout(ProviderName).WithCause(err)
	}
	return apperrors.ConnectionFailed(ProviderName).WithCause(err)
}

// parseRetryAfter reads an upstream Retry-After header as either a delay in
// seconds or an HTTP date. A missing or malformed value defaults to a
// one-minute window.
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

// --- internal OpenAI API types ---

type transcriptionResponse struct {
	Text string `json:"text"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type insightPayload struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
	KeyTopics   []string `json:"key_topics"`
	Sentiment   string   `json:"sentiment"`
}
