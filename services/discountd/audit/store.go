// Package audit journals discount events so operators can reconstruct who
// changed which participant's discount and when.
package audit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cpswap/core/events"
	"cpswap/crypto"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 100

// Entry is a persisted discount event.
type Entry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type        string    `gorm:"size:32;index"`
	User        string    `gorm:"column:participant;size:64;index"`
	Record      string    `gorm:"size:66"`
	Actor       string    `gorm:"size:64"`
	Previous    uint64    `gorm:"not null"`
	Numerator   uint64    `gorm:"not null"`
	Denominator string    `gorm:"size:24"`
	CreatedAt   time.Time `gorm:"index"`
}

// TableName pins the table name independent of GORM's pluraliser.
func (Entry) TableName() string { return "discount_audit" }

// Store persists entries through GORM. It implements events.Emitter.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: unknown driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	return New(db)
}

// New wraps an existing GORM handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("audit: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Store{db: db, logger: slog.Default(), now: time.Now}, nil
}

// SetLogger overrides the logger used to report persistence failures.
func (s *Store) SetLogger(logger *slog.Logger) {
	if s == nil || logger == nil {
		return
	}
	s.logger = logger
}

// SetNowFunc overrides the clock used to timestamp entries.
func (s *Store) SetNowFunc(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.now = now
}

// Emit implements events.Emitter. Events the journal does not understand are
// ignored; persistence failures are logged because emitters cannot fail.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	entry, ok := s.entryFor(evt)
	if !ok {
		return
	}
	if err := s.Append(context.Background(), entry); err != nil {
		s.logger.Error("audit: persist event", "type", evt.EventType(), "error", err)
	}
}

func (s *Store) entryFor(evt events.Event) (Entry, bool) {
	switch e := evt.(type) {
	case events.DiscountCreated:
		return Entry{
			Type:   e.EventType(),
			User:   crypto.FormatAccount(e.User),
			Record: recordHex(e.Record),
			Actor:  crypto.FormatAccount(e.Payer),
		}, true
	case events.DiscountUpdated:
		return Entry{
			Type:        e.EventType(),
			User:        crypto.FormatAccount(e.User),
			Record:      recordHex(e.Record),
			Actor:       crypto.FormatAccount(e.Authority),
			Previous:    e.Previous,
			Numerator:   e.Numerator,
			Denominator: strconv.FormatUint(e.Denominator, 10),
		}, true
	default:
		return Entry{}, false
	}
}

// Append writes a single entry, assigning an ID and timestamp when missing.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if s == nil || s.db == nil {
		return errors.New("audit: store not initialised")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// History returns the newest entries for user, newest first.
func (s *Store) History(ctx context.Context, user [20]byte, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("audit: store not initialised")
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("participant = ?", crypto.FormatAccount(user)).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit: query history: %w", err)
	}
	return entries, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordHex(record [32]byte) string {
	return "0x" + hex.EncodeToString(record[:])
}
