package jobs

import (
	"context"
	"log"
	"time"

	"sweeps-casino/internal/services"
)

// WeekCloser automatically closes leaderboard weeks whose window has elapsed.
type WeekCloser struct {
	leaderboard *services.LeaderboardService
	interval    time.Duration
	stopChan    chan struct{}
}

// NewWeekCloser creates a new week closer job
func NewWeekCloser(leaderboard *services.LeaderboardService, interval time.Duration) *WeekCloser {
	return &WeekCloser{
		leaderboard: leaderboard,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the week-close loop
func (wc *WeekCloser) Start() {
	log.Printf("[WeekCloser] Starting week close job (interval: %v)", wc.interval)

	ticker := time.NewTicker(wc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			wc.closeElapsedWeeks()
		case <-wc.stopChan:
			log.Println("[WeekCloser] Stopping week close job")
			return
		}
	}
}

// Stop stops the week-close loop
func (wc *WeekCloser) Stop() {
	close(wc.stopChan)
}

// closeElapsedWeeks ranks and pays out every open week that has ended.
// CloseWeek is idempotent, so a crash mid-pass is safe to re-run.
func (wc *WeekCloser) closeElapsedWeeks() {
	ctx := context.Background()

	if err := wc.leaderboard.CloseElapsedWeeks(ctx, time.Now()); err != nil {
		log.Printf("[WeekCloser] Error closing elapsed weeks: %v", err)
	}
}
