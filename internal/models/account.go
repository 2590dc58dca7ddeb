package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyGold   Currency = "GOLD"
	CurrencySweeps Currency = "SWEEPS"
)

// IsValid reports whether c is one of the two platform currencies.
func (c Currency) IsValid() bool {
	return c == CurrencyGold || c == CurrencySweeps
}

// Account is the balance projection for one (user, currency) pair.
// Created lazily on first credit, never deleted. HeldAmount is the portion
// of Balance reserved by in-flight withdrawals; Available = Balance - HeldAmount.
type Account struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     uint            `gorm:"not null;uniqueIndex:idx_accounts_user_currency" json:"user_id"`
	Currency   Currency        `gorm:"size:10;not null;uniqueIndex:idx_accounts_user_currency" json:"currency"`
	Balance    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"balance"`
	HeldAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"held_amount"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Available returns the spendable portion of the balance.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.HeldAmount)
}
