package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalState string

const (
	WithdrawalStateSubmitted     WithdrawalState = "SUBMITTED"
	WithdrawalStateKYCPending    WithdrawalState = "KYC_PENDING"
	WithdrawalStateKYCVerified   WithdrawalState = "KYC_VERIFIED"
	WithdrawalStateStaffReview   WithdrawalState = "STAFF_REVIEW"
	WithdrawalStateStaffApproved WithdrawalState = "STAFF_APPROVED"
	WithdrawalStateStaffRejected WithdrawalState = "STAFF_REJECTED"
	WithdrawalStateAdminReview   WithdrawalState = "ADMIN_REVIEW"
	WithdrawalStateAdminApproved WithdrawalState = "ADMIN_APPROVED"
	WithdrawalStateAdminRejected WithdrawalState = "ADMIN_REJECTED"
	WithdrawalStateCancelled     WithdrawalState = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible from s.
func (s WithdrawalState) IsTerminal() bool {
	switch s {
	case WithdrawalStateStaffRejected,
		WithdrawalStateAdminApproved,
		WithdrawalStateAdminRejected,
		WithdrawalStateCancelled:
		return true
	}
	return false
}

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// WithdrawalRequest is one SWEEPS redemption moving through the approval
// pipeline. The hold is placed before the row is persisted, so every persisted
// request has funds reserved behind it until it reaches a terminal state.
type WithdrawalRequest struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	AmountRequested decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_requested"`
	Method          string          `gorm:"size:50;not null" json:"method"`
	KYCStatusAtSubmit KYCStatus     `gorm:"size:20;not null" json:"kyc_status_at_submit"`
	State           WithdrawalState `gorm:"size:20;not null;default:SUBMITTED;index" json:"state"`
	StaffDecision   *Decision       `gorm:"size:20" json:"staff_decision,omitempty"`
	StaffActorID    *uint           `json:"staff_actor_id,omitempty"`
	AdminDecision   *Decision       `gorm:"size:20" json:"admin_decision,omitempty"`
	AdminActorID    *uint           `json:"admin_actor_id,omitempty"`
	HoldID          uuid.UUID       `gorm:"type:uuid;not null" json:"hold_id"`
	SettlementTxID  *uuid.UUID      `gorm:"type:uuid" json:"settlement_tx_id,omitempty"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}
