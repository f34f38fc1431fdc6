package insight

// Request holds parameters for a processing call.
type Request struct {
	// UserID identifies the requesting account, for per-user quota tracking.
	UserID string `json:"user_id"`
	// AudioPath is the path to the preprocessed audio file.
	AudioPath string `json:"audio_path"`
	// Model is the model identifier the caller selected.
	Model string `json:"model,omitempty"`
	// Language is the expected language of the audio (e.g. "en").
	Language string `json:"language,omitempty"`
	// OnProgress, if set, receives completion percentages in [0,100].
	OnProgress func(pct float64) `json:"-"`
	// OnStatus, if set, receives named processing phases with progress,
	// e.g. "loading model" then "transcribing".
	OnStatus func(status string, pct float64) `json:"-"`
}

// Result holds the full output of a processing call.
type Result struct {
	// Transcript is the full transcription text.
	Transcript string `json:"transcript"`
	// Summary is a prose summary of the meeting.
	Summary string `json:"summary"`
	// ActionItems lists concrete follow-ups extracted from the transcript.
	ActionItems []string `json:"action_items,omitempty"`
	// KeyTopics lists the main subjects discussed.
	KeyTopics []string `json:"key_topics,omitempty"`
	// Sentiment is an overall tone label (e.g. "positive", "neutral").
	Sentiment string `json:"sentiment,omitempty"`
	// Model is the model that actually produced the result.
	Model string `json:"model"`
	// DurationSecs is the audio duration billed for this call.
	DurationSecs float64 `json:"duration_secs,omitempty"`
}

// Descriptor describes a registered provider for capability listings.
type Descriptor struct {
	// ID is the stable provider identifier.
	ID string `json:"id"`
	// Name is the human-readable provider name.
	Name string `json:"name"`
	// Models lists the model identifiers this provider serves.
	Models []string `json:"models,omitempty"`
	// CostPerMinute is the credit cost per audio minute.
	CostPerMinute float64 `json:"cost_per_minute"`
	// Connected reports whether the backend answered its last health check.
	Connected bool `json:"connected"`
	// Default marks the provider used when no model is requested.
	Default bool `json:"default"`
}
