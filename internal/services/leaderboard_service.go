package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sweeps-casino/internal/models"
)

// LeaderboardService maintains the running weekly entries, ranks them at week
// close and pays configured prizes through the wallet. Points are always
// recomputed from cumulative totals in integer cents; nothing accumulates
// fractional points.
type LeaderboardService struct {
	db     *gorm.DB
	wallet *WalletService
	locks  *accountLocks
	loc    *time.Location
}

func NewLeaderboardService(db *gorm.DB, wallet *WalletService, loc *time.Location) *LeaderboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &LeaderboardService{
		db:     db,
		wallet: wallet,
		locks:  newAccountLocks(),
		loc:    loc,
	}
}

// RecordGameResult upserts the caller's entry for the week containing now.
// Called once per completed game round. A result landing after a week was
// closed is attributed to the following week, never inserted retroactively.
func (s *LeaderboardService) RecordGameResult(ctx context.Context, userID uint, wagered, winnings decimal.Decimal) (*models.WeeklyLeaderboardEntry, error) {
	if wagered.IsNegative() || winnings.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return s.recordAt(ctx, userID, wagered, winnings, time.Now())
}

func (s *LeaderboardService) recordAt(ctx context.Context, userID uint, wagered, winnings decimal.Decimal, at time.Time) (*models.WeeklyLeaderboardEntry, error) {
	start, end := WeekWindow(at, s.loc)

	for attempt := 0; attempt < 2; attempt++ {
		week, err := s.ensureWeek(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if week.Status == models.WeekStatusClosed {
			// The window was closed early; the result belongs to the next week.
			start, end = end, end.AddDate(0, 0, 7)
			continue
		}

		mu := s.locks.lock(fmt.Sprintf("entry:%d:%s", userID, start.Format("2006-01-02")))
		entry, err := s.upsertEntry(ctx, userID, wagered, winnings, start, end)
		mu.Unlock()
		if errors.Is(err, errWeekClosedMidway) {
			// A close pass won the race after the check above; divert.
			start, end = end, end.AddDate(0, 0, 7)
			continue
		}
		if err != nil {
			return nil, err
		}
		return entry, nil
	}
	return nil, ErrWeekClosed
}

// errWeekClosedMidway signals that the week flipped closed between the
// pre-check and the entry transaction.
var errWeekClosedMidway = errors.New("week closed during update")

// upsertEntry accumulates one result into the week's entry. The week status
// is re-read under a row lock inside the same transaction as the entry save,
// so a close pass can never interleave between the status check and the write:
// once a week is closed its entries are frozen.
func (s *LeaderboardService) upsertEntry(ctx context.Context, userID uint, wagered, winnings decimal.Decimal, start, end time.Time) (*models.WeeklyLeaderboardEntry, error) {
	var entry models.WeeklyLeaderboardEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var week models.WeekRecord
		if err := forUpdate(tx).Where("week_start = ?", start).First(&week).Error; err != nil {
			return fmt.Errorf("failed to load week: %w", err)
		}
		if week.Status == models.WeekStatusClosed {
			return errWeekClosedMidway
		}

		err := tx.Where("user_id = ? AND week_start = ?", userID, start).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry = models.WeeklyLeaderboardEntry{
				UserID:        userID,
				WeekStart:     start,
				WeekEnd:       end,
				TotalWinnings: decimal.Zero,
				TotalWagered:  decimal.Zero,
				BiggestWin:    decimal.Zero,
			}
		} else if err != nil {
			return fmt.Errorf("failed to load leaderboard entry: %w", err)
		}

		entry.TotalWagered = entry.TotalWagered.Add(wagered)
		entry.TotalWinnings = entry.TotalWinnings.Add(winnings)
		entry.GamesPlayed++
		if winnings.GreaterThan(entry.BiggestWin) {
			entry.BiggestWin = winnings
		}
		if winnings.IsPositive() {
			entry.CurrentStreak++
			if entry.CurrentStreak > entry.WinStreak {
				entry.WinStreak = entry.CurrentStreak
			}
		} else {
			entry.CurrentStreak = 0
		}
		entry.PointsEarned = scorePoints(entry.TotalWinnings, entry.TotalWagered, entry.BiggestWin)

		return tx.Save(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// scorePoints computes floor(winnings*0.10 + wagered*0.01 + biggestWin*0.05)
// in integer cents: floor((10*Wc + Gc + 5*Bc) / 10000) for cent values Wc, Gc, Bc.
func scorePoints(totalWinnings, totalWagered, biggestWin decimal.Decimal) int64 {
	cents := func(d decimal.Decimal) int64 {
		return d.Mul(decimal.NewFromInt(100)).IntPart()
	}
	numerator := 10*cents(totalWinnings) + cents(totalWagered) + 5*cents(biggestWin)
	return numerator / 10000
}

// Standings returns the week's entries in final (or live) order with ranks
// assigned. For an open week ranks are computed on the fly and not persisted.
func (s *LeaderboardService) Standings(ctx context.Context, weekStart time.Time, limit int) ([]models.WeeklyLeaderboardEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.rankedEntries(ctx, s.db.WithContext(ctx), weekStart)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// UserRank returns one user's position in the week.
func (s *LeaderboardService) UserRank(ctx context.Context, userID uint, weekStart time.Time) (*models.UserRankResponse, error) {
	entries, err := s.rankedEntries(ctx, s.db.WithContext(ctx), weekStart)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.UserID == userID {
			return &models.UserRankResponse{
				UserID:     userID,
				Rank:       *e.Rank,
				Points:     e.PointsEarned,
				TotalUsers: len(entries),
			}, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// rankedEntries loads a week's entries in the deterministic order (points
// desc, winnings desc, games desc, userId asc) and assigns standard ranks:
// positions tie only when every compared field is identical.
func (s *LeaderboardService) rankedEntries(ctx context.Context, tx *gorm.DB, weekStart time.Time) ([]models.WeeklyLeaderboardEntry, error) {
	var entries []models.WeeklyLeaderboardEntry
	err := tx.
		Where("week_start = ?", weekStart).
		Order("points_earned DESC, total_winnings DESC, games_played DESC, user_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard entries: %w", err)
	}

	for i := range entries {
		rank := i + 1
		if i > 0 && sameStanding(&entries[i], &entries[i-1]) {
			rank = *entries[i-1].Rank
		}
		entries[i].Rank = &rank
	}
	return entries, nil
}

func sameStanding(a, b *models.WeeklyLeaderboardEntry) bool {
	return a.PointsEarned == b.PointsEarned &&
		a.TotalWinnings.Equal(b.TotalWinnings) &&
		a.GamesPlayed == b.GamesPlayed
}

// ConfigurePrize creates (or replaces) one prize slot for a week. Must happen
// before or at week close; slots for already-claimed ranks are immutable.
func (s *LeaderboardService) ConfigurePrize(ctx context.Context, weekStart time.Time, rank int, currency models.Currency, amount decimal.Decimal) (*models.PrizeAssignment, error) {
	if rank < 1 {
		return nil, fmt.Errorf("rank must be >= 1")
	}
	if !currency.IsValid() {
		return nil, ErrInvalidCurrency
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	// "rank" is quoted through a map condition; it is a reserved word in
	// sqlite's window-function grammar.
	var prize models.PrizeAssignment
	err := s.db.WithContext(ctx).
		Where("week_start = ?", weekStart).
		Where(map[string]interface{}{"rank": rank}).
		First(&prize).Error
	if err == nil {
		if prize.Claimed {
			return nil, fmt.Errorf("prize for rank %d already claimed", rank)
		}
		prize.PrizeCurrency = currency
		prize.PrizeAmount = amount
		if err := s.db.WithContext(ctx).Save(&prize).Error; err != nil {
			return nil, err
		}
		return &prize, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	prize = models.PrizeAssignment{
		WeekStart:     weekStart,
		Rank:          rank,
		PrizeCurrency: currency,
		PrizeAmount:   amount,
	}
	if err := s.db.WithContext(ctx).Create(&prize).Error; err != nil {
		return nil, err
	}
	return &prize, nil
}

// CloseWeek flips the week closed, persists final ranks and pays prizes.
// Idempotent: a second call finds the week closed, re-runs only the unclaimed
// prize rows, and the "weekStart:rank" reference keys make the credits no-ops
// if they already happened.
func (s *LeaderboardService) CloseWeek(ctx context.Context, weekStart time.Time) ([]models.WeeklyLeaderboardEntry, error) {
	mu := s.locks.lock("close:" + weekStart.Format("2006-01-02"))
	defer mu.Unlock()

	week, err := s.ensureWeek(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}

	if week.Status != models.WeekStatusClosed {
		// Flip the flag first, under the same row lock the entry writers
		// take: any in-flight update either commits before the flip (and is
		// ranked below) or sees the closed status and diverts to the next week.
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var w models.WeekRecord
			if err := forUpdate(tx).Where("week_start = ?", weekStart).First(&w).Error; err != nil {
				return fmt.Errorf("failed to load week: %w", err)
			}
			if w.Status == models.WeekStatusClosed {
				return nil
			}
			now := time.Now()
			w.Status = models.WeekStatusClosed
			w.ClosedAt = &now
			return tx.Save(&w).Error
		})
		if err != nil {
			return nil, fmt.Errorf("failed to close week: %w", err)
		}

		entries, err := s.rankedEntries(ctx, s.db.WithContext(ctx), weekStart)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			if err := s.db.WithContext(ctx).Save(&entries[i]).Error; err != nil {
				return nil, fmt.Errorf("failed to persist rank: %w", err)
			}
		}
		log.Printf("[Leaderboard] Week %s closed with %d participants", weekStart.Format("2006-01-02"), len(entries))
	}

	if err := s.payPrizes(ctx, weekStart); err != nil {
		return nil, err
	}
	return s.rankedEntries(ctx, s.db.WithContext(ctx), weekStart)
}

// CloseElapsedWeeks closes every still-open week whose window ended before now.
func (s *LeaderboardService) CloseElapsedWeeks(ctx context.Context, now time.Time) error {
	var weeks []models.WeekRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND week_end <= ?", models.WeekStatusOpen, now).
		Find(&weeks).Error
	if err != nil {
		return err
	}
	for _, w := range weeks {
		if _, err := s.CloseWeek(ctx, w.WeekStart); err != nil {
			return fmt.Errorf("failed to close week %s: %w", w.WeekStart.Format("2006-01-02"), err)
		}
	}
	return nil
}

func (s *LeaderboardService) payPrizes(ctx context.Context, weekStart time.Time) error {
	var prizes []models.PrizeAssignment
	err := s.db.WithContext(ctx).
		Where("week_start = ? AND claimed = ?", weekStart, false).
		Find(&prizes).Error
	if err != nil {
		return err
	}
	if len(prizes) == 0 {
		return nil
	}

	entries, err := s.rankedEntries(ctx, s.db.WithContext(ctx), weekStart)
	if err != nil {
		return err
	}
	byRank := make(map[int]*models.WeeklyLeaderboardEntry, len(entries))
	for i := range entries {
		if _, taken := byRank[*entries[i].Rank]; !taken {
			byRank[*entries[i].Rank] = &entries[i]
		}
	}

	for i := range prizes {
		prize := &prizes[i]
		entry, ok := byRank[prize.Rank]
		if !ok {
			// Fewer participants than prize slots; leave unclaimed.
			continue
		}

		referenceID := fmt.Sprintf("%s:%d", weekStart.Format("2006-01-02"), prize.Rank)
		_, err := s.wallet.Credit(ctx, entry.UserID, prize.PrizeCurrency, prize.PrizeAmount,
			"weekly_leaderboard_prize", referenceID)
		if err != nil {
			return fmt.Errorf("failed to pay rank %d prize: %w", prize.Rank, err)
		}

		now := time.Now()
		prize.Claimed = true
		prize.ClaimedBy = &entry.UserID
		prize.ClaimedAt = &now
		if err := s.db.WithContext(ctx).Save(prize).Error; err != nil {
			return fmt.Errorf("failed to mark prize claimed: %w", err)
		}
		log.Printf("[Leaderboard] Paid rank %d prize (%s %s) to user %d",
			prize.Rank, prize.PrizeAmount, prize.PrizeCurrency, entry.UserID)
	}
	return nil
}

// ListPrizes returns the prize table (and claim status) for a week.
func (s *LeaderboardService) ListPrizes(ctx context.Context, weekStart time.Time) ([]models.PrizeAssignment, error) {
	var prizes []models.PrizeAssignment
	err := s.db.WithContext(ctx).
		Where("week_start = ?", weekStart).
		Order("\"rank\" ASC").
		Find(&prizes).Error
	return prizes, err
}

// Weeks lists registered weeks, newest first.
func (s *LeaderboardService) Weeks(ctx context.Context, limit int) ([]models.WeekRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var weeks []models.WeekRecord
	err := s.db.WithContext(ctx).Order("week_start DESC").Limit(limit).Find(&weeks).Error
	return weeks, err
}

// CurrentWeek returns (registering if needed) the open week containing now.
func (s *LeaderboardService) CurrentWeek(ctx context.Context) (*models.WeekRecord, error) {
	start, end := WeekWindow(time.Now(), s.loc)
	return s.ensureWeek(ctx, start, end)
}

func (s *LeaderboardService) ensureWeek(ctx context.Context, start, end time.Time) (*models.WeekRecord, error) {
	var week models.WeekRecord
	err := s.db.WithContext(ctx).Where("week_start = ?", start).First(&week).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		week = models.WeekRecord{
			WeekStart: start,
			WeekEnd:   end,
			Status:    models.WeekStatusOpen,
		}
		if err := s.db.WithContext(ctx).Create(&week).Error; err != nil {
			return nil, fmt.Errorf("failed to register week: %w", err)
		}
		return &week, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load week: %w", err)
	}
	return &week, nil
}
