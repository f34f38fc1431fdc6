package gormstore

import (
	"encoding/json"
	"time"

	"github.com/skillsenselab/recap/credits"
	"github.com/skillsenselab/recap/job"
)

// jobModel is the gorm mapping of a processing job. Slice fields are stored
// as JSON text so the schema works on sqlite without array types.
type jobModel struct {
	ID     string `gorm:"primaryKey;type:text"`
	UserID string `gorm:"index;not null"`
	Status string `gorm:"index;not null"`

	AudioRef     string
	DurationSecs float64

	Transcript  *string
	Summary     *string
	ActionItems string `gorm:"type:text"`
	KeyTopics   string `gorm:"type:text"`
	Sentiment   string

	ProcessingModel string
	CreditsConsumed int
	CreditsHeld     int
	ErrorNote       string

	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
	ReprocessedAt *time.Time
}

func (jobModel) TableName() string { return "jobs" }

// ledgerEntryModel is the gorm mapping of a credit ledger entry.
type ledgerEntryModel struct {
	ID          string `gorm:"primaryKey;type:text"`
	UserID      string `gorm:"index;not null"`
	Amount      int    `gorm:"not null"`
	Type        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"index"`
}

func (ledgerEntryModel) TableName() string { return "ledger_entries" }

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:              j.ID,
		UserID:          j.UserID,
		Status:          string(j.Status),
		AudioRef:        j.AudioRef,
		DurationSecs:    j.DurationSecs,
		Transcript:      j.Transcript,
		Summary:         j.Summary,
		ActionItems:     marshalStrings(j.ActionItems),
		KeyTopics:       marshalStrings(j.KeyTopics),
		Sentiment:       j.Sentiment,
		ProcessingModel: j.ProcessingModel,
		CreditsConsumed: j.CreditsConsumed,
		CreditsHeld:     j.CreditsHeld,
		ErrorNote:       j.ErrorNote,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		ReprocessedAt:   j.ReprocessedAt,
	}
}

func (m *jobModel) toJob() *job.Job {
	return &job.Job{
		ID:              m.ID,
		UserID:          m.UserID,
		Status:          job.Status(m.Status),
		AudioRef:        m.AudioRef,
		DurationSecs:    m.DurationSecs,
		Transcript:      m.Transcript,
		Summary:         m.Summary,
		ActionItems:     unmarshalStrings(m.ActionItems),
		KeyTopics:       unmarshalStrings(m.KeyTopics),
		Sentiment:       m.Sentiment,
		ProcessingModel: m.ProcessingModel,
		CreditsConsumed: m.CreditsConsumed,
		CreditsHeld:     m.CreditsHeld,
		ErrorNote:       m.ErrorNote,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		ReprocessedAt:   m.ReprocessedAt,
	}
}

func toEntryModel(e *credits.Entry) *ledgerEntryModel {
	return &ledgerEntryModel{
		ID:          e.ID,
		UserID:      e.UserID,
		Amount:      e.Amount,
		Type:        string(e.Type),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

func (m *ledgerEntryModel) toEntry() *credits.Entry {
	return &credits.Entry{
		ID:          m.ID,
		UserID:      m.UserID,
		Amount:      m.Amount,
		Type:        credits.EntryType(m.Type),
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil
	}
	return out
}
