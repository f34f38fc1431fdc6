// Package gormstore implements the job and ledger stores on a relational
// database via gorm. sqlite is the default driver; any gorm dialector works.
package gormstore

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/skillsenselab/recap/credits"
	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/job"
	"github.com/skillsenselab/recap/logger"
)

// Config holds database configuration.
type Config struct {
	// DSN is the database path or connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// MaxOpenConns caps open connections. sqlite works best with 1 writer.
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`

	// AutoMigrate controls whether the schema is migrated on startup.
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.DSN == "" {
		c.DSN = "recap.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 1
	}
}

// Store implements job.Store and credits.Store on gorm.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects to the database and migrates the schema when configured.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	cfg.ApplyDefaults()

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Storage("open", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Storage("open", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&jobModel{}, &ledgerEntryModel{}); err != nil {
			return nil, errors.Storage("migrate", err)
		}
	}

	log.WithComponent("gormstore").Info("database ready", map[string]interface{}{"dsn": cfg.DSN})
	return &Store{db: db, log: logger.Get("gormstore")}, nil
}

// NewStore wraps an existing gorm connection. Used by tests.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, log: logger.Get("gormstore")}
}

// Ping verifies the underlying database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	if err := s.db.WithContext(ctx).Create(toJobModel(j)).Error; err != nil {
		return errors.Storage("create job", err)
	}
	return nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*job.Job, error) {
	var m jobModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("job", id)
		}
		return nil, errors.Storage("get job", err)
	}
	return m.toJob(), nil
}

// UpdateJob persists all fields of j unconditionally.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	j.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&jobModel{}).
		Where("id = ?", j.ID).
		Select("*").Omit("id", "created_at").
		Updates(toJobModel(j))
	if res.Error != nil {
		return errors.Storage("update job", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("job", j.ID)
	}
	return nil
}

// UpdateJobIfStatus persists j only while the stored status equals expect.
// The conditional UPDATE's affected row count is the linearization point:
// exactly one of any set of concurrent callers observes a row change.
func (s *Store) UpdateJobIfStatus(ctx context.Context, j *job.Job, expect job.Status) (bool, error) {
	j.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&jobModel{}).
		Where("id = ? AND status = ?", j.ID, string(expect)).
		Select("*").Omit("id", "created_at").
		Updates(toJobModel(j))
	if res.Error != nil {
		return false, errors.Storage("conditional update", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListTerminalBefore returns terminal jobs last updated before cutoff that
// still hold an artifact reference.
func (s *Store) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.WithContext(ctx).
		Where("status IN ? AND audio_ref <> '' AND updated_at < ?",
			[]string{string(job.StatusCompleted), string(job.StatusFailed), string(job.StatusCancelled)},
			cutoff).
		Order("updated_at asc").
		Find(&models).Error
	if err != nil {
		return nil, errors.Storage("list terminal", err)
	}
	out := make([]*job.Job, len(models))
	for i := range models {
		out[i] = models[i].toJob()
	}
	return out, nil
}

// AppendEntry persists a ledger entry. Debits run inside a transaction that
// re-reads the balance, so a below-zero outcome can never be committed.
func (s *Store) AppendEntry(ctx context.Context, e *credits.Entry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if e.Amount < 0 {
			balance, err := sumBalance(tx, e.UserID)
			if err != nil {
				return err
			}
			if balance+e.Amount < 0 {
				return errors.InsufficientCredits(balance, -e.Amount)
			}
		}
		if err := tx.Create(toEntryModel(e)).Error; err != nil {
			return errors.Storage("append entry", err)
		}
		return nil
	})
}

// Balance returns the running sum of a user's entries.
func (s *Store) Balance(ctx context.Context, userID string) (int, error) {
	return sumBalance(s.db.WithContext(ctx), userID)
}

// RecentEntries returns up to n of a user's entries, newest first.
func (s *Store) RecentEntries(ctx context.Context, userID string, n int) ([]*credits.Entry, error) {
	var models []ledgerEntryModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(n).
		Find(&models).Error
	if err != nil {
		return nil, errors.Storage("recent entries", err)
	}
	out := make([]*credits.Entry, len(models))
	for i := range models {
		out[i] = models[i].toEntry()
	}
	return out, nil
}

func sumBalance(tx *gorm.DB, userID string) (int, error) {
	var balance *int
	err := tx.Model(&ledgerEntryModel{}).
		Where("user_id = ?", userID).
		Select("SUM(amount)").
		Scan(&balance).Error
	if err != nil {
		return 0, errors.Storage("balance", err)
	}
	if balance == nil {
		return 0, nil
	}
	return *balance, nil
}
