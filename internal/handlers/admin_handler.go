package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sweeps-casino/internal/auth"
	"sweeps-casino/internal/cache"
	"sweeps-casino/internal/models"
	"sweeps-casino/internal/services"
)

type AdminHandler struct {
	users       *services.UserService
	wallet      *services.WalletService
	withdrawals *services.WithdrawalService
	leaderboard *services.LeaderboardService
	audit       *services.AuditService
	standings   *cache.StandingsCache
	loc         *time.Location
}

func NewAdminHandler(
	users *services.UserService,
	wallet *services.WalletService,
	withdrawals *services.WithdrawalService,
	leaderboard *services.LeaderboardService,
	audit *services.AuditService,
	standings *cache.StandingsCache,
	loc *time.Location,
) *AdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminHandler{
		users:       users,
		wallet:      wallet,
		withdrawals: withdrawals,
		leaderboard: leaderboard,
		audit:       audit,
		standings:   standings,
		loc:         loc,
	}
}

// WithdrawalQueue lists requests waiting in one state
// GET /api/admin/withdrawals?state=STAFF_REVIEW&limit=&offset=
func (h *AdminHandler) WithdrawalQueue(c *gin.Context) {
	state := models.WithdrawalState(c.DefaultQuery("state", string(models.WithdrawalStateStaffReview)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	requests, err := h.withdrawals.ListByState(c.Request.Context(), state, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "withdrawals": requests})
}

// DecideWithdrawal records the caller's decision on a request
// POST /api/admin/withdrawals/:id/decide
func (h *AdminHandler) DecideWithdrawal(c *gin.Context) {
	actorID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	role, _ := auth.GetRole(c)

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	var req models.DecideWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.withdrawals.Decide(c.Request.Context(), requestID, actorID, role, req.Decision)
	if err != nil {
		respondWithdrawalError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// SetKYCStatus updates a user's KYC standing and re-evaluates parked requests
// POST /api/admin/users/:id/kyc
func (h *AdminHandler) SetKYCStatus(c *gin.Context) {
	actorID, _ := auth.GetUserID(c)

	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req models.SetKYCStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.SetKYCStatus(c.Request.Context(), uint(userID), req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.withdrawals.RefreshKYC(c.Request.Context(), uint(userID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "kyc updated but withdrawal re-evaluation failed"})
		return
	}

	h.audit.Record(c.Request.Context(), actorID, models.RoleAdmin, "kyc_status_change", "user",
		strconv.FormatUint(userID, 10), models.JSONB{"status": req.Status})
	c.JSON(http.StatusOK, user)
}

// Adjust applies a signed manual balance correction
// POST /api/admin/wallet/adjust
func (h *AdminHandler) Adjust(c *gin.Context) {
	actorID, _ := auth.GetUserID(c)

	var req models.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.wallet.Adjust(c.Request.Context(), req.UserID, req.Currency, req.Amount, req.Reason, req.ReferenceID)
	if err != nil {
		respondWalletError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), actorID, models.RoleAdmin, "balance_adjustment", "account",
		strconv.FormatUint(uint64(req.UserID), 10), models.JSONB{
			"currency": req.Currency,
			"amount":   req.Amount.String(),
			"reason":   req.Reason,
		})
	c.JSON(http.StatusOK, tx)
}

// ConfigurePrize sets one prize slot for a week
// POST /api/admin/prizes
func (h *AdminHandler) ConfigurePrize(c *gin.Context) {
	var req models.PrizeConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	weekStart, err := time.ParseInLocation("2006-01-02", req.WeekStart, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week_start, expected YYYY-MM-DD"})
		return
	}

	prize, err := h.leaderboard.ConfigurePrize(c.Request.Context(), weekStart, req.Rank, req.Currency, req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, prize)
}

// ListPrizes returns the prize table and claim status for a week
// GET /api/admin/prizes?week=2006-01-02
func (h *AdminHandler) ListPrizes(c *gin.Context) {
	raw := c.Query("week")
	var weekStart time.Time
	if raw == "" {
		weekStart, _ = services.WeekWindow(time.Now(), h.loc)
	} else {
		var err error
		weekStart, err = time.ParseInLocation("2006-01-02", raw, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week, expected YYYY-MM-DD"})
			return
		}
	}

	prizes, err := h.leaderboard.ListPrizes(c.Request.Context(), weekStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load prizes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"week_start": weekStart, "prizes": prizes})
}

// CloseWeek ranks and pays out a week; idempotent
// POST /api/admin/leaderboard/close
func (h *AdminHandler) CloseWeek(c *gin.Context) {
	actorID, _ := auth.GetUserID(c)

	var req struct {
		WeekStart string `json:"week_start" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	weekStart, err := time.ParseInLocation("2006-01-02", req.WeekStart, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week_start, expected YYYY-MM-DD"})
		return
	}

	entries, err := h.leaderboard.CloseWeek(c.Request.Context(), weekStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.standings.Invalidate(c.Request.Context(), weekStart)

	h.audit.Record(c.Request.Context(), actorID, models.RoleAdmin, "week_close", "week",
		weekStart.Format("2006-01-02"), models.JSONB{"participants": len(entries)})
	c.JSON(http.StatusOK, gin.H{"week_start": weekStart, "standings": entries})
}

// CreateUser registers a user (players, staff, admins)
// POST /api/admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req struct {
		Username string      `json:"username" binding:"required"`
		Role     models.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Username, req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// VerifyLedger replays a user's ledger and compares it to the stored balance
// GET /api/admin/ledger/:id/:currency/verify
func (h *AdminHandler) VerifyLedger(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	currency := models.Currency(c.Param("currency"))
	if !currency.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid currency"})
		return
	}

	replayed, err := h.wallet.ReplayBalance(c.Request.Context(), uint(userID), currency)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	account, err := h.wallet.GetBalance(c.Request.Context(), uint(userID), currency)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stored_balance":   account.Balance,
		"replayed_balance": replayed,
		"consistent":       account.Balance.Equal(replayed),
	})
}
