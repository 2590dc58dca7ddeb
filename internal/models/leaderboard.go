package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WeekStatus string

const (
	WeekStatusOpen   WeekStatus = "OPEN"
	WeekStatusClosed WeekStatus = "CLOSED"
)

// WeekRecord is the registry row for one leaderboard window. It is the single
// source of truth for whether a week is still accepting game results.
type WeekRecord struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	WeekStart time.Time  `gorm:"uniqueIndex;not null" json:"week_start"`
	WeekEnd   time.Time  `gorm:"not null" json:"week_end"`
	Status    WeekStatus `gorm:"size:20;not null;default:OPEN;index" json:"status"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (WeekRecord) TableName() string {
	return "weeks"
}

// WeeklyLeaderboardEntry accumulates one user's results for one week. Mutable
// while the week is open, frozen (with a final rank) once it closes.
type WeeklyLeaderboardEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"not null;uniqueIndex:idx_leaderboard_user_week" json:"user_id"`
	WeekStart     time.Time       `gorm:"not null;uniqueIndex:idx_leaderboard_user_week;index" json:"week_start"`
	WeekEnd       time.Time       `gorm:"not null" json:"week_end"`
	TotalWinnings decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_winnings"`
	TotalWagered  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_wagered"`
	GamesPlayed   int             `gorm:"not null;default:0" json:"games_played"`
	BiggestWin    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"biggest_win"`
	WinStreak     int             `gorm:"not null;default:0" json:"win_streak"`
	CurrentStreak int             `gorm:"not null;default:0" json:"-"`
	PointsEarned  int64           `gorm:"not null;default:0;index" json:"points_earned"`
	Rank          *int            `json:"rank,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (WeeklyLeaderboardEntry) TableName() string {
	return "weekly_leaderboard_entries"
}

// PrizeAssignment maps a final rank in a closed week to a prize. Consumed at
// most once; the claim is keyed by "weekStart:rank" on the ledger side so a
// re-run of the close pass can never pay twice.
type PrizeAssignment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	WeekStart     time.Time       `gorm:"not null;uniqueIndex:idx_prizes_week_rank" json:"week_start"`
	Rank          int             `gorm:"not null;uniqueIndex:idx_prizes_week_rank" json:"rank"`
	PrizeCurrency Currency        `gorm:"size:10;not null" json:"prize_currency"`
	PrizeAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"prize_amount"`
	Claimed       bool            `gorm:"not null;default:false" json:"claimed"`
	ClaimedBy     *uint           `json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (PrizeAssignment) TableName() string {
	return "prize_assignments"
}
