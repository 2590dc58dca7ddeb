package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "ACTIVE"
	HoldStatusReleased HoldStatus = "RELEASED"
	HoldStatusSettled  HoldStatus = "SETTLED"
)

// Hold tracks one reservation against a SWEEPS balance. The ledger entries it
// points at stay immutable; only the hold's own status moves, and it moves at
// most once (ACTIVE -> RELEASED or ACTIVE -> SETTLED).
type Hold struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uint            `gorm:"not null;index" json:"user_id"`
	Currency      Currency        `gorm:"size:10;not null" json:"currency"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Status        HoldStatus      `gorm:"size:20;not null;default:ACTIVE;index" json:"status"`
	HoldTxID      uuid.UUID       `gorm:"type:uuid;not null" json:"hold_tx_id"`
	ResolutionTxID *uuid.UUID     `gorm:"type:uuid" json:"resolution_tx_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

func (Hold) TableName() string {
	return "holds"
}
