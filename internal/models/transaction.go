package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindCredit     TransactionKind = "CREDIT"
	TransactionKindDebit      TransactionKind = "DEBIT"
	TransactionKindHold       TransactionKind = "HOLD"
	TransactionKindRelease    TransactionKind = "RELEASE"
	TransactionKindSettle     TransactionKind = "SETTLE"
	TransactionKindAdjustment TransactionKind = "ADJUSTMENT"
)

// Transaction is one immutable ledger entry. Rows are append-only: replaying
// all entries for an account in creation order reproduces its stored balance.
// HOLD and RELEASE entries record reservations and do not move the balance;
// CREDIT, DEBIT, SETTLE and ADJUSTMENT do.
type Transaction struct {
	// Seq is the append position; replay follows it, never timestamps
	// (which can tie) or uuids (which are random).
	Seq             uint64          `gorm:"primaryKey;autoIncrement" json:"-"`
	ID              uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"id"`
	UserID          uint            `gorm:"not null;index:idx_transactions_user_currency" json:"user_id"`
	Currency        Currency        `gorm:"size:10;not null;index:idx_transactions_user_currency" json:"currency"`
	Kind            TransactionKind `gorm:"size:20;not null;index" json:"kind"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	PreviousBalance decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"previous_balance"`
	NewBalance      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"new_balance"`
	Reason          string          `gorm:"size:255;not null" json:"reason"`
	ReferenceID     *string         `gorm:"size:255;index" json:"reference_id,omitempty"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
