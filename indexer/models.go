package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is one emitted chain event.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"size:64;index"`
	Height     uint64    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Allocation is the auditor view of an allocations.allocated event.
type Allocation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq       uint64    `gorm:"uniqueIndex"`
	Oracle    string    `gorm:"size:96;index"`
	Grantee   string    `gorm:"size:96;index"`
	Amount    string    `gorm:"size:80"`
	Consumed  string    `gorm:"size:80"`
	ProofHash string    `gorm:"size:66"`
	Height    uint64    `gorm:"index"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Event{},
		&Allocation{},
	)
}
