package local

import (
	"context"
	"os/exec"

	"github.com/google/uuid"

	"github.com/skillsenselab/recap/insight"
)

const (
	// ProviderName is the registered name for the on-device provider.
	ProviderName = "local"

	defaultModel = "local-whisper-base"
)

// Config holds configuration for the on-device provider.
type Config struct {
	// ModelDir is where downloaded model files are cached.
	ModelDir string `mapstructure:"model_dir" yaml:"model_dir"`
	// Model is the default model identifier.
	Model string `mapstructure:"model" yaml:"model"`
}

// Provider implements insight.Provider with on-device transcription and
// heuristic insight extraction. Processing costs no credits.
type Provider struct {
	cfg    Config
	cache  *ModelCache
	worker *Worker
}

// NewProvider creates the on-device provider. The model is not loaded until
// the first request needs it.
func NewProvider(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Provider{
		cfg:    cfg,
		cache:  NewModelCache(cfg.ModelDir),
		worker: NewWorker(),
	}
}

// Close stops the transcription worker.
func (p *Provider) Close() { p.worker.Close() }

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// Models lists the model identifiers this provider serves.
func (p *Provider) Models() []string {
	return []string{"local-whisper-base", "local-whisper-small"}
}

// CostPerMinute is zero: on-device processing spends no credits.
func (p *Provider) CostPerMinute() float64 { return 0 }

// IsAvailable reports whether the transcription binary is installed.
func (p *Provider) IsAvailable(context.Context) bool {
	_, err := exec.LookPath(whisperBinary)
	return err == nil
}

// Process loads the model if needed, transcribes on the worker goroutine and
// extracts insights from the transcript. Model loading occupies the first
// half of the progress range, transcription the second.
func (p *Provider) Process(ctx context.Context, req insight.Request) (*insight.Result, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	report(req, PhaseLoadingModel, 0)
	handle, err := p.cache.Get(ctx, model, func(pct float64) {
		report(req, PhaseLoadingModel, pct/2)
	})
	if err != nil {
		return nil, err
	}
	report(req, PhaseLoadingModel, 50)

	transcript, err := p.worker.Submit(ctx, uuid.NewString(), handle, req.AudioPath, func(status string, pct float64) {
		report(req, status, 50+pct/2)
	})
	if err != nil {
		return nil, err
	}

	summary, actionItems, keyTopics, sentiment := extractInsights(transcript)
	return &insight.Result{
		Transcript:  transcript,
		Summary:     summary,
		ActionItems: actionItems,
		KeyTopics:   keyTopics,
		Sentiment:   sentiment,
		Model:       model,
	}, nil
}

func report(req insight.Request, status string, pct float64) {
	if req.OnProgress != nil {
		req.OnProgress(pct)
	}
	if req.OnStatus != nil {
		req.OnStatus(status, pct)
	}
}
