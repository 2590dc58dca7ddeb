package models

import (
	"github.com/shopspring/decimal"
)

// CreditRequest is the payload for a wallet credit or debit.
type CreditRequest struct {
	UserID      uint            `json:"user_id" binding:"required"`
	Currency    Currency        `json:"currency" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Reason      string          `json:"reason" binding:"required"`
	ReferenceID string          `json:"reference_id"`
}

// SubmitWithdrawalRequest is the payload for a withdrawal submission.
type SubmitWithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method" binding:"required"`
}

// DecideWithdrawalRequest is a staff or admin decision on a pending request.
type DecideWithdrawalRequest struct {
	Decision Decision `json:"decision" binding:"required"`
}

// GameResultRequest is reported once per completed game round.
type GameResultRequest struct {
	UserID   uint            `json:"user_id" binding:"required"`
	Wagered  decimal.Decimal `json:"wagered"`
	Winnings decimal.Decimal `json:"winnings"`
}

// PrizeConfigRequest configures one prize slot for a week.
type PrizeConfigRequest struct {
	WeekStart string          `json:"week_start" binding:"required"` // YYYY-MM-DD
	Rank      int             `json:"rank" binding:"required"`
	Currency  Currency        `json:"currency" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

// SetKYCStatusRequest updates a user's KYC standing.
type SetKYCStatusRequest struct {
	Status KYCStatus `json:"status" binding:"required"`
}

// BalanceResponse is the read-model for one account.
type BalanceResponse struct {
	UserID     uint            `json:"user_id"`
	Currency   Currency        `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	HeldAmount decimal.Decimal `json:"held_amount"`
	Available  decimal.Decimal `json:"available"`
}

// UserRankResponse is the per-user standings read-model.
type UserRankResponse struct {
	UserID     uint  `json:"user_id"`
	Rank       int   `json:"rank"`
	Points     int64 `json:"points"`
	TotalUsers int   `json:"total_users"`
}
