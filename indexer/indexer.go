package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"grantchain/core/events"
)

// Open connects to dsn. postgres:// and postgresql:// URLs use the postgres
// driver; anything else is handed to the embedded SQLite driver.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("indexer: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return db, nil
}

// Indexer persists emitted events for auditors. Persistence failures are
// logged and never reach the state machine.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates the schema and returns an indexer writing to db.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: log.With("component", "indexer")}, nil
}

// Emit implements events.Emitter.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	if err := i.store(payload.Type, payload.Height, payload.Attributes); err != nil {
		i.logger.Error("persist event", "type", payload.Type, "height", payload.Height, "error", err)
	}
}

func (i *Indexer) store(eventType string, height uint64, attrs map[string]string) error {
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return i.db.Transaction(func(tx *gorm.DB) error {
		row := Event{
			ID:         uuid.New(),
			Type:       eventType,
			Height:     height,
			Attributes: string(encoded),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if eventType != events.TypeAllocated {
			return nil
		}
		seq, err := strconv.ParseUint(attrs["seq"], 10, 64)
		if err != nil {
			return fmt.Errorf("allocation seq: %w", err)
		}
		return tx.Create(&Allocation{
			ID:        uuid.New(),
			Seq:       seq,
			Oracle:    attrs["oracle"],
			Grantee:   attrs["grantee"],
			Amount:    attrs["amount"],
			Consumed:  attrs["consumed"],
			ProofHash: attrs["proofHash"],
			Height:    height,
		}).Error
	})
}

// Allocations returns every allocation to grantee (bech32), oldest first. An
// empty grantee returns the whole history.
func (i *Indexer) Allocations(grantee string) ([]Allocation, error) {
	query := i.db.Order("seq asc")
	if trimmed := strings.TrimSpace(grantee); trimmed != "" {
		query = query.Where("grantee = ?", trimmed)
	}
	var rows []Allocation
	err := query.Find(&rows).Error
	return rows, err
}

// Events returns up to limit events of eventType, newest first. An empty
// type matches every event.
func (i *Indexer) Events(eventType string, limit int) ([]Event, error) {
	query := i.db.Order("height desc").Order("created_at desc")
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []Event
	err := query.Find(&rows).Error
	return rows, err
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
