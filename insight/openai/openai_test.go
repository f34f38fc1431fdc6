package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/insight"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.m4a")
	if err := os.WriteFile(path, []byte("fake-audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestProcess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/transcriptions":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if got := r.FormValue("model"); got != "gpt-4o-transcribe" {
				t.Errorf("model field = %q, want gpt-4o-transcribe", got)
			}
			if _, _, err := r.FormFile("file"); err != nil {
				t.Errorf("file part missing: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]string{"text": "we agreed to ship on friday"})
		case "/chat/completions":
			var req chatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode chat request: %v", err)
			}
			if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
				t.Error("chat request must demand a JSON object response")
			}
			content, _ := json.Marshal(insightPayload{
				Summary:     "Shipping decision made.",
				ActionItems: []string{"Ship on Friday"},
				KeyTopics:   []string{"release"},
				Sentiment:   "positive",
			})
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": string(content)}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewProvider(Config{APIKey: "test-key", BaseURL: srv.URL})

	var progress []float64
	result, err := p.Process(context.Background(), insight.Request{
		AudioPath:  writeAudio(t),
		Model:      "gpt-4o-transcribe",
		OnProgress: func(pct float64) { progress = append(progress, pct) },
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Transcript != "we agreed to ship on friday" {
		t.Errorf("Transcript = %q", result.Transcript)
	}
	if result.Summary != "Shipping decision made." {
		t.Errorf("Summary = %q", result.Summary)
	}
	if len(result.ActionItems) != 1 || result.ActionItems[0] != "Ship on Friday" {
		t.Errorf("ActionItems = %v", result.ActionItems)
	}
	if result.Sentiment != "positive" {
		t.Errorf("Sentiment = %q", result.Sentiment)
	}
	if result.Model != "gpt-4o-transcribe" {
		t.Errorf("Model = %q", result.Model)
	}
	if len(progress) != 2 || progress[0] != 50 || progress[1] != 90 {
		t.Errorf("progress = %v, want [50 90]", progress)
	}
}

func TestProcessRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	p := NewProvider(Config{APIKey: "test-key", BaseURL: srv.URL, UpgradeEligible: true})

	before := time.Now()
	_, err := p.Process(context.Background(), insight.Request{AudioPath: writeAudio(t)})
	if err == nil {
		t.Fatal("Process() expected error")
	}

	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("error is not an AppError: %v", err)
	}
	if appErr.Code != apperrors.ErrCodeRateLimited {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.ErrCodeRateLimited)
	}
	if eligible, _ := appErr.Details["upgrade_eligible"].(bool); !eligible {
		t.Errorf("upgrade_eligible = %v, want true", appErr.Details["upgrade_eligible"])
	}
	resetRaw, _ := appErr.Details["reset_at"].(string)
	resetAt, perr := time.Parse(time.RFC3339, resetRaw)
	if perr != nil {
		t.Fatalf("reset_at %q not RFC3339: %v", resetRaw, perr)
	}
	if resetAt.Before(before.Add(110*time.Second)) || resetAt.After(before.Add(130*time.Second)) {
		t.Errorf("reset_at = %v, want roughly 120s after %v", resetAt, before)
	}
}

func TestProcessUpstreamOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProvider(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.Process(context.Background(), insight.Request{AudioPath: writeAudio(t)})
	if err == nil {
		t.Fatal("Process() expected error")
	}
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeConnectionFailed {
		t.Errorf("code = %s, want %s", code, apperrors.ErrCodeConnectionFailed)
	}
}

func TestProcessProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid audio format"}}`))
	}))
	defer srv.Close()

	p := NewProvider(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.Process(context.Background(), insight.Request{AudioPath: writeAudio(t)})
	if err == nil {
		t.Fatal("Process() expected error")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("error is not an AppError: %v", err)
	}
	if appErr.Code != apperrors.ErrCodeProvider {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.ErrCodeProvider)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Now()

	if got := parseRetryAfter("30"); got.Before(now.Add(25*time.Second)) || got.After(now.Add(35*time.Second)) {
		t.Errorf("parseRetryAfter(30) = %v, want ~30s from now", got)
	}
	if got := parseRetryAfter(""); got.Before(now.Add(55*time.Second)) || got.After(now.Add(65*time.Second)) {
		t.Errorf("parseRetryAfter(empty) = %v, want ~1m from now", got)
	}
	httpDate := now.Add(5 * time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(httpDate); got.Before(now.Add(4*time.Minute)) || got.After(now.Add(6*time.Minute)) {
		t.Errorf("parseRetryAfter(date) = %v, want ~5m from now", got)
	}
	if got := parseRetryAfter("garbage"); got.Before(now.Add(55*time.Second)) || got.After(now.Add(65*time.Second)) {
		t.Errorf("parseRetryAfter(garbage) = %v, want ~1m from now", got)
	}
}
