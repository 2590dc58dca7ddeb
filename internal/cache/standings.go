package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sweeps-casino/internal/models"
)

const standingsTTL = 30 * time.Second

// StandingsCache keeps live leaderboard reads off the database for a short
// TTL. The platform runs fine without redis: a nil *StandingsCache (or one
// built from an empty address) degrades to pass-through.
type StandingsCache struct {
	client *redis.Client
}

// NewStandingsCache connects to redis, or returns nil when addr is empty.
func NewStandingsCache(addr, password string) *StandingsCache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	return &StandingsCache{client: client}
}

func standingsKey(weekStart time.Time, limit int) string {
	return fmt.Sprintf("leaderboard:standings:%s:%d", weekStart.Format("2006-01-02"), limit)
}

// GetStandings returns the cached entries for the week, or nil on miss.
func (c *StandingsCache) GetStandings(ctx context.Context, weekStart time.Time, limit int) []models.WeeklyLeaderboardEntry {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, standingsKey(weekStart, limit)).Bytes()
	if err != nil {
		return nil
	}
	var entries []models.WeeklyLeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

// SetStandings caches the entries for the week. Failures are ignored; the
// cache is best-effort.
func (c *StandingsCache) SetStandings(ctx context.Context, weekStart time.Time, limit int, entries []models.WeeklyLeaderboardEntry) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	c.client.Set(ctx, standingsKey(weekStart, limit), raw, standingsTTL)
}

// Invalidate drops every cached variant for the week. Called at week close so
// closed standings are immediately final.
func (c *StandingsCache) Invalidate(ctx context.Context, weekStart time.Time) {
	if c == nil {
		return
	}
	pattern := fmt.Sprintf("leaderboard:standings:%s:*", weekStart.Format("2006-01-02"))
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}
