package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"sweeps-casino/internal/auth"
	"sweeps-casino/internal/models"
	"sweeps-casino/internal/services"
)

type WalletHandler struct {
	wallet *services.WalletService
}

func NewWalletHandler(wallet *services.WalletService) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

// GetBalance returns the caller's balance for one currency
// GET /api/wallet/:currency/balance
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	currency := models.Currency(c.Param("currency"))
	account, err := h.wallet.GetBalance(c.Request.Context(), userID, currency)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			// Never credited yet; report an empty account rather than a 404.
			c.JSON(http.StatusOK, models.BalanceResponse{UserID: userID, Currency: currency})
			return
		}
		if errors.Is(err, services.ErrInvalidCurrency) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid currency"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		UserID:     account.UserID,
		Currency:   account.Currency,
		Balance:    account.Balance,
		HeldAmount: account.HeldAmount,
		Available:  account.Available(),
	})
}

// GetTransactions returns the caller's ledger history, newest first
// GET /api/wallet/:currency/transactions?limit=&offset=
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	currency := models.Currency(c.Param("currency"))
	if !currency.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid currency"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.wallet.GetTransactions(c.Request.Context(), userID, currency, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "limit": limit, "offset": offset})
}

// Credit applies a monetary event from a game/store caller
// POST /api/internal/wallet/credit
func (h *WalletHandler) Credit(c *gin.Context) {
	h.mutate(c, h.wallet.Credit)
}

// Debit applies a monetary event from a game/store caller
// POST /api/internal/wallet/debit
func (h *WalletHandler) Debit(c *gin.Context) {
	h.mutate(c, h.wallet.Debit)
}

type walletOp func(ctx context.Context, userID uint, currency models.Currency, amount decimal.Decimal, reason, referenceID string) (*models.Transaction, error)

func (h *WalletHandler) mutate(c *gin.Context, op walletOp) {
	var req models.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := op(c.Request.Context(), req.UserID, req.Currency, req.Amount, req.Reason, req.ReferenceID)
	if err != nil {
		respondWalletError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func respondWalletError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient available balance"})
	case errors.Is(err, services.ErrDuplicateReference):
		c.JSON(http.StatusConflict, gin.H{"error": "reference id already used with different parameters"})
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrInvalidCurrency):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}
