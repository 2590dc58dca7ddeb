package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sweeps-casino/internal/auth"
	"sweeps-casino/internal/cache"
	"sweeps-casino/internal/models"
	"sweeps-casino/internal/services"
)

type LeaderboardHandler struct {
	leaderboard *services.LeaderboardService
	standings   *cache.StandingsCache
	loc         *time.Location
}

func NewLeaderboardHandler(leaderboard *services.LeaderboardService, standings *cache.StandingsCache, loc *time.Location) *LeaderboardHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &LeaderboardHandler{
		leaderboard: leaderboard,
		standings:   standings,
		loc:         loc,
	}
}

// RecordGameResult ingests one completed game round
// POST /api/internal/games/result
func (h *LeaderboardHandler) RecordGameResult(c *gin.Context) {
	var req models.GameResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.leaderboard.RecordGameResult(c.Request.Context(), req.UserID, req.Wagered, req.Winnings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Standings returns live or closed standings for a week
// GET /api/leaderboard?week=2006-01-02&limit=
func (h *LeaderboardHandler) Standings(c *gin.Context) {
	weekStart, err := h.weekParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week, expected YYYY-MM-DD"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if cached := h.standings.GetStandings(c.Request.Context(), weekStart, limit); cached != nil {
		c.JSON(http.StatusOK, gin.H{"week_start": weekStart, "standings": cached, "cached": true})
		return
	}

	entries, err := h.leaderboard.Standings(c.Request.Context(), weekStart, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load standings"})
		return
	}
	h.standings.SetStandings(c.Request.Context(), weekStart, limit, entries)
	c.JSON(http.StatusOK, gin.H{"week_start": weekStart, "standings": entries})
}

// MyRank returns the caller's position in a week
// GET /api/leaderboard/me?week=2006-01-02
func (h *LeaderboardHandler) MyRank(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	weekStart, err := h.weekParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week, expected YYYY-MM-DD"})
		return
	}

	rank, err := h.leaderboard.UserRank(c.Request.Context(), userID, weekStart)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no entry for this week"})
		return
	}
	c.JSON(http.StatusOK, rank)
}

// weekParam resolves the ?week= query, defaulting to the current window.
func (h *LeaderboardHandler) weekParam(c *gin.Context) (time.Time, error) {
	raw := c.Query("week")
	if raw == "" {
		start, _ := services.WeekWindow(time.Now(), h.loc)
		return start, nil
	}
	return time.ParseInLocation("2006-01-02", raw, h.loc)
}
