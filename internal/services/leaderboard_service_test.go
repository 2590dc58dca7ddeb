package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sweeps-casino/internal/models"
)

// midweek is a Wednesday; its window is Sunday 2026-01-04 to 2026-01-11.
var midweek = time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

func setupLeaderboard(t *testing.T) (*LeaderboardService, *WalletService) {
	db := setupTestDB(t)
	wallet := NewWalletService(db)
	return NewLeaderboardService(db, wallet, time.UTC), wallet
}

func TestRecordGameResultAccumulates(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	entry, err := lb.recordAt(ctx, 1, dec("10.00"), dec("25.00"), midweek)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	entry, err = lb.recordAt(ctx, 1, dec("5.00"), dec("0"), midweek.Add(time.Hour))
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if entry.GamesPlayed != 2 {
		t.Errorf("games played = %d, want 2", entry.GamesPlayed)
	}
	if !entry.TotalWagered.Equal(dec("15.00")) {
		t.Errorf("total wagered = %s, want 15.00", entry.TotalWagered)
	}
	if !entry.TotalWinnings.Equal(dec("25.00")) {
		t.Errorf("total winnings = %s, want 25.00", entry.TotalWinnings)
	}
	if !entry.BiggestWin.Equal(dec("25.00")) {
		t.Errorf("biggest win = %s, want 25.00", entry.BiggestWin)
	}
	if entry.WinStreak != 1 {
		t.Errorf("win streak = %d, want 1", entry.WinStreak)
	}
}

func TestScorePoints(t *testing.T) {
	cases := []struct {
		winnings, wagered, biggest string
		want                       int64
	}{
		// floor(winnings*0.10 + wagered*0.01 + biggestWin*0.05)
		{"100.00", "100.00", "50.00", 13},  // 10 + 1 + 2.5 = 13.5 -> 13
		{"0", "0", "0", 0},
		{"9.99", "0", "0", 0},              // 0.999 -> 0
		{"10.00", "0", "0", 1},
		{"0.01", "0.01", "0.01", 0},        // sub-point stays at zero
		{"1000.00", "500.00", "200.00", 115}, // 100 + 5 + 10
	}
	for _, c := range cases {
		got := scorePoints(dec(c.winnings), dec(c.wagered), dec(c.biggest))
		if got != c.want {
			t.Errorf("scorePoints(%s, %s, %s) = %d, want %d",
				c.winnings, c.wagered, c.biggest, got, c.want)
		}
	}
}

func TestWinStreakTracksBestRun(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	// win, win, loss, win: best streak is 2.
	results := []string{"5.00", "5.00", "0", "5.00"}
	var entry *models.WeeklyLeaderboardEntry
	var err error
	for i, w := range results {
		entry, err = lb.recordAt(ctx, 1, dec("1.00"), dec(w), midweek.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if entry.WinStreak != 2 {
		t.Errorf("win streak = %d, want 2", entry.WinStreak)
	}
}

func TestStandingsDeterministicOrder(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	// User 3 and user 7 finish with identical points, winnings and games:
	// a true tie, broken for ordering only by user id. User 5 matches on
	// points but has lower winnings, so it ranks below both.
	seed := func(userID uint, wagered, winnings string, games int) {
		for i := 0; i < games; i++ {
			w := decimal.Zero
			if i == 0 {
				w = dec(winnings)
			}
			if _, err := lb.recordAt(ctx, userID, dec(wagered), w, midweek.Add(time.Duration(i)*time.Minute)); err != nil {
				t.Fatalf("seed failed: %v", err)
			}
		}
	}
	seed(7, "100.00", "200.00", 2)
	seed(3, "100.00", "200.00", 2)
	seed(5, "150.00", "195.00", 2)

	entries, err := lb.Standings(ctx, weekStartOf(midweek), 10)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	// Tied pair first, ordered by user id; both carry rank 1.
	if entries[0].UserID != 3 || entries[1].UserID != 7 {
		t.Errorf("order = [%d %d %d], want [3 7 5]", entries[0].UserID, entries[1].UserID, entries[2].UserID)
	}
	if *entries[0].Rank != 1 || *entries[1].Rank != 1 {
		t.Errorf("tied ranks = %d, %d, want 1, 1", *entries[0].Rank, *entries[1].Rank)
	}
	if *entries[2].Rank != 3 {
		t.Errorf("rank after tie = %d, want 3", *entries[2].Rank)
	}
}

func TestStandingsStableAcrossReads(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	for u := uint(1); u <= 5; u++ {
		if _, err := lb.recordAt(ctx, u, dec("50.00"), dec("50.00"), midweek); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	first, err := lb.Standings(ctx, weekStartOf(midweek), 10)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	second, err := lb.Standings(ctx, weekStartOf(midweek), 10)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	for i := range first {
		if first[i].UserID != second[i].UserID || *first[i].Rank != *second[i].Rank {
			t.Fatalf("standings order changed between reads at position %d", i)
		}
	}
}

func TestCloseWeekPaysPrizesOnce(t *testing.T) {
	lb, wallet := setupLeaderboard(t)
	ctx := context.Background()

	if _, err := lb.recordAt(ctx, 1, dec("100.00"), dec("500.00"), midweek); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := lb.recordAt(ctx, 2, dec("100.00"), dec("300.00"), midweek); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	start := weekStartOf(midweek)
	if _, err := lb.ConfigurePrize(ctx, start, 1, models.CurrencySweeps, dec("25.00")); err != nil {
		t.Fatalf("configure prize failed: %v", err)
	}
	if _, err := lb.ConfigurePrize(ctx, start, 2, models.CurrencyGold, dec("1000")); err != nil {
		t.Fatalf("configure prize failed: %v", err)
	}

	entries, err := lb.CloseWeek(ctx, start)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if *entries[0].Rank != 1 || entries[0].UserID != 1 {
		t.Fatalf("winner = user %d rank %d, want user 1 rank 1", entries[0].UserID, *entries[0].Rank)
	}

	// Closing again must not pay again.
	if _, err := lb.CloseWeek(ctx, start); err != nil {
		t.Fatalf("repeated close failed: %v", err)
	}

	account, err := wallet.GetBalance(ctx, 1, models.CurrencySweeps)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if !account.Balance.Equal(dec("25.00")) {
		t.Errorf("rank 1 balance = %s, want 25.00", account.Balance)
	}
	account, err = wallet.GetBalance(ctx, 2, models.CurrencyGold)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if !account.Balance.Equal(dec("1000")) {
		t.Errorf("rank 2 balance = %s, want 1000", account.Balance)
	}

	prizes, err := lb.ListPrizes(ctx, start)
	if err != nil {
		t.Fatalf("list prizes failed: %v", err)
	}
	for _, p := range prizes {
		if !p.Claimed {
			t.Errorf("prize rank %d not marked claimed", p.Rank)
		}
	}
}

func TestCloseWeekExtraPrizeSlotsStayUnclaimed(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	if _, err := lb.recordAt(ctx, 1, dec("10.00"), dec("100.00"), midweek); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	start := weekStartOf(midweek)
	if _, err := lb.ConfigurePrize(ctx, start, 1, models.CurrencyGold, dec("500")); err != nil {
		t.Fatalf("configure prize failed: %v", err)
	}
	if _, err := lb.ConfigurePrize(ctx, start, 2, models.CurrencyGold, dec("250")); err != nil {
		t.Fatalf("configure prize failed: %v", err)
	}

	if _, err := lb.CloseWeek(ctx, start); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	prizes, err := lb.ListPrizes(ctx, start)
	if err != nil {
		t.Fatalf("list prizes failed: %v", err)
	}
	for _, p := range prizes {
		switch p.Rank {
		case 1:
			if !p.Claimed {
				t.Error("rank 1 prize should be claimed")
			}
		case 2:
			if p.Claimed {
				t.Error("rank 2 prize has no participant and must stay unclaimed")
			}
		}
	}
}

func TestResultAfterCloseGoesToNextWeek(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	start := weekStartOf(midweek)
	if _, err := lb.recordAt(ctx, 1, dec("10.00"), dec("20.00"), midweek); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := lb.CloseWeek(ctx, start); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// A result timestamped inside the closed window lands in the next one.
	entry, err := lb.recordAt(ctx, 1, dec("10.00"), dec("20.00"), midweek.Add(time.Hour))
	if err != nil {
		t.Fatalf("record after close failed: %v", err)
	}
	if !entry.WeekStart.Equal(start.AddDate(0, 0, 7)) {
		t.Errorf("entry week start = %s, want %s", entry.WeekStart, start.AddDate(0, 0, 7))
	}

	// The closed week's entry is frozen.
	closed, err := lb.Standings(ctx, start, 10)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	if len(closed) != 1 || closed[0].GamesPlayed != 1 {
		t.Errorf("closed week changed after close: %+v", closed)
	}
}

func TestRecordDivertsWhenWeekClosesUnderneath(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()
	start := weekStartOf(midweek)

	if _, err := lb.recordAt(ctx, 1, dec("10.00"), dec("20.00"), midweek); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Flip the registry row directly, bypassing CloseWeek and its lock. The
	// status re-check rides in the same transaction as the entry save, so
	// the update diverts instead of mutating the closed snapshot.
	err := lb.db.Model(&models.WeekRecord{}).
		Where("week_start = ?", start).
		Update("status", models.WeekStatusClosed).Error
	if err != nil {
		t.Fatalf("failed to flip week: %v", err)
	}

	entry, err := lb.recordAt(ctx, 1, dec("10.00"), dec("20.00"), midweek.Add(time.Minute))
	if err != nil {
		t.Fatalf("record after flip failed: %v", err)
	}
	if !entry.WeekStart.Equal(start.AddDate(0, 0, 7)) {
		t.Errorf("entry week start = %s, want %s", entry.WeekStart, start.AddDate(0, 0, 7))
	}

	var frozen models.WeeklyLeaderboardEntry
	if err := lb.db.Where("user_id = ? AND week_start = ?", 1, start).First(&frozen).Error; err != nil {
		t.Fatalf("failed to load closed entry: %v", err)
	}
	if frozen.GamesPlayed != 1 {
		t.Errorf("closed entry mutated: games played = %d, want 1", frozen.GamesPlayed)
	}
}

func TestUserRank(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	if _, err := lb.recordAt(ctx, 1, dec("10.00"), dec("100.00"), midweek); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := lb.recordAt(ctx, 2, dec("10.00"), dec("200.00"), midweek); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rank, err := lb.UserRank(ctx, 1, weekStartOf(midweek))
	if err != nil {
		t.Fatalf("user rank failed: %v", err)
	}
	if rank.Rank != 2 || rank.TotalUsers != 2 {
		t.Errorf("rank = %d of %d, want 2 of 2", rank.Rank, rank.TotalUsers)
	}
}

func TestRecordGameResultRejectsNegative(t *testing.T) {
	lb, _ := setupLeaderboard(t)
	ctx := context.Background()

	if _, err := lb.RecordGameResult(ctx, 1, dec("-1"), dec("0")); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative wager: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := lb.RecordGameResult(ctx, 1, dec("1"), dec("-1")); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative winnings: err = %v, want ErrInvalidAmount", err)
	}
}

func weekStartOf(at time.Time) time.Time {
	start, _ := WeekWindow(at, time.UTC)
	return start
}
