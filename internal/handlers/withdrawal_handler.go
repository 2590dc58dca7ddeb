package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sweeps-casino/internal/auth"
	"sweeps-casino/internal/models"
	"sweeps-casino/internal/services"
)

type WithdrawalHandler struct {
	withdrawals *services.WithdrawalService
}

func NewWithdrawalHandler(withdrawals *services.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

// Submit creates a new withdrawal request for the caller
// POST /api/withdrawals
func (h *WithdrawalHandler) Submit(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.SubmitWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.withdrawals.Submit(c.Request.Context(), userID, req.Amount, req.Method)
	if err != nil {
		respondWithdrawalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// Get returns one withdrawal request. Owners see their own; staff and admin
// see any.
// GET /api/withdrawals/:id
func (h *WithdrawalHandler) Get(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	request, err := h.withdrawals.GetByID(c.Request.Context(), requestID)
	if err != nil {
		respondWithdrawalError(c, err)
		return
	}

	role, _ := auth.GetRole(c)
	if request.UserID != userID && role != models.RoleStaff && role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, request)
}

// List returns the caller's withdrawal requests, newest first
// GET /api/withdrawals?limit=&offset=
func (h *WithdrawalHandler) List(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	requests, err := h.withdrawals.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load withdrawals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": requests})
}

// Cancel withdraws the caller's own pending request
// POST /api/withdrawals/:id/cancel
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	request, err := h.withdrawals.Cancel(c.Request.Context(), requestID, userID)
	if err != nil {
		respondWithdrawalError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func respondWithdrawalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrWithdrawalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal request not found"})
	case errors.Is(err, services.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient available balance"})
	case errors.Is(err, services.ErrPendingWithdrawal):
		c.JSON(http.StatusConflict, gin.H{"error": "another withdrawal is already pending"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid state transition"})
	case errors.Is(err, services.ErrInvalidHoldState):
		c.JSON(http.StatusConflict, gin.H{"error": "hold already resolved"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, services.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}
