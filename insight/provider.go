package insight

import "context"

// Provider is the interface that processing backends must implement.
type Provider interface {
	// Name returns the stable provider identifier.
	Name() string
	// Models lists the model identifiers this provider serves.
	Models() []string
	// CostPerMinute is the credit cost per audio minute.
	CostPerMinute() float64
	// IsAvailable probes whether the backend can currently take work.
	IsAvailable(ctx context.Context) bool
	// Process transcribes the audio and extracts insights in one call.
	Process(ctx context.Context, req Request) (*Result, error)
}
