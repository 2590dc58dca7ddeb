package models

import (
	"time"
)

type KYCStatus string

const (
	KYCStatusUnverified KYCStatus = "UNVERIFIED"
	KYCStatusPending    KYCStatus = "PENDING"
	KYCStatusVerified   KYCStatus = "VERIFIED"
	KYCStatusRejected   KYCStatus = "REJECTED"
)

type Role string

const (
	RolePlayer Role = "player"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// User represents a player on the platform. Authentication lives outside this
// core; the user row carries only what the ledger and the withdrawal workflow
// need (identity, role, KYC standing).
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Role      Role      `gorm:"size:20;not null;default:player" json:"role"`
	KYCStatus KYCStatus `gorm:"size:20;not null;default:UNVERIFIED" json:"kyc_status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
