package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sweeps-casino/internal/models"
)

// WalletService enforces the ledger invariants: every balance change appends
// exactly one immutable transaction, available balance never goes negative,
// and retries with the same reference id are no-ops. Mutations on the same
// (user, currency) account are serialized; different accounts run in parallel.
type WalletService struct {
	db    *gorm.DB
	locks *accountLocks
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		db:    db,
		locks: newAccountLocks(),
	}
}

// Credit increases the account balance and appends a CREDIT transaction.
// The account is created lazily on first credit. If referenceID was already
// used for this account with the same kind and amount, the original
// transaction is returned and nothing is applied.
func (s *WalletService) Credit(ctx context.Context, userID uint, currency models.Currency, amount decimal.Decimal, reason, referenceID string) (*models.Transaction, error) {
	return s.apply(ctx, userID, currency, models.TransactionKindCredit, amount, reason, referenceID)
}

// Debit decreases the account balance and appends a DEBIT transaction.
// Fails with ErrInsufficientFunds when amount exceeds the available balance
// (held funds are not spendable).
func (s *WalletService) Debit(ctx context.Context, userID uint, currency models.Currency, amount decimal.Decimal, reason, referenceID string) (*models.Transaction, error) {
	return s.apply(ctx, userID, currency, models.TransactionKindDebit, amount, reason, referenceID)
}

// Adjust applies a signed manual correction (admin only upstream). The ledger
// entry stores the absolute amount; direction is carried by the balance pair.
func (s *WalletService) Adjust(ctx context.Context, userID uint, currency models.Currency, delta decimal.Decimal, reason, referenceID string) (*models.Transaction, error) {
	if delta.IsZero() {
		return nil, ErrInvalidAmount
	}
	return s.applyDelta(ctx, userID, currency, models.TransactionKindAdjustment, delta, reason, referenceID)
}

func (s *WalletService) apply(ctx context.Context, userID uint, currency models.Currency, kind models.TransactionKind, amount decimal.Decimal, reason, referenceID string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	delta := amount
	if kind == models.TransactionKindDebit {
		delta = amount.Neg()
	}
	return s.applyDelta(ctx, userID, currency, kind, delta, reason, referenceID)
}

// applyDelta runs the balance check and the ledger append as one atomic unit
// inside the per-account critical section.
func (s *WalletService) applyDelta(ctx context.Context, userID uint, currency models.Currency, kind models.TransactionKind, delta decimal.Decimal, reason, referenceID string) (*models.Transaction, error) {
	if !currency.IsValid() {
		return nil, ErrInvalidCurrency
	}

	mu := s.locks.lock(fmt.Sprintf("%d:%s", userID, currency))
	defer mu.Unlock()

	var result *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if referenceID != "" {
			existing, err := findByReference(tx, userID, currency, referenceID)
			if err != nil {
				return err
			}
			if existing != nil {
				// The balance pair carries the signed direction, which the
				// absolute Amount alone would miss for adjustments.
				existingDelta := existing.NewBalance.Sub(existing.PreviousBalance)
				if existing.Kind != kind || !existingDelta.Equal(delta) {
					return ErrDuplicateReference
				}
				result = existing
				return nil
			}
		}

		account, err := getOrCreateAccount(tx, userID, currency)
		if err != nil {
			return err
		}

		newBalance := account.Balance.Add(delta)
		if delta.IsNegative() {
			if kind == models.TransactionKindDebit && delta.Neg().GreaterThan(account.Available()) {
				return ErrInsufficientFunds
			}
			if newBalance.IsNegative() || newBalance.LessThan(account.HeldAmount) {
				return ErrInsufficientFunds
			}
		}

		entry := newLedgerEntry(userID, currency, kind, delta.Abs(), account.Balance, newBalance, reason, referenceID)
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}

		account.Balance = newBalance
		if err := tx.Save(account).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Wallet] %s user=%d %s %s (balance %s -> %s)",
		kind, userID, result.Amount, currency, result.PreviousBalance, result.NewBalance)
	return result, nil
}

// Hold reserves SWEEPS against pending withdrawal settlement. The balance is
// untouched; the held amount is excluded from Available until the hold is
// released or settled.
func (s *WalletService) Hold(ctx context.Context, userID uint, amount decimal.Decimal) (*models.Hold, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	currency := models.CurrencySweeps

	mu := s.locks.lock(fmt.Sprintf("%d:%s", userID, currency))
	defer mu.Unlock()

	var hold *models.Hold
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := getOrCreateAccount(tx, userID, currency)
		if err != nil {
			return err
		}
		if amount.GreaterThan(account.Available()) {
			return ErrInsufficientFunds
		}

		entry := newLedgerEntry(userID, currency, models.TransactionKindHold, amount,
			account.Balance, account.Balance, "withdrawal_hold", "")
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append hold entry: %w", err)
		}

		hold = &models.Hold{
			ID:       uuid.New(),
			UserID:   userID,
			Currency: currency,
			Amount:   amount,
			Status:   models.HoldStatusActive,
			HoldTxID: entry.ID,
		}
		if err := tx.Create(hold).Error; err != nil {
			return fmt.Errorf("failed to create hold: %w", err)
		}

		account.HeldAmount = account.HeldAmount.Add(amount)
		return tx.Save(account).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Wallet] HOLD %s user=%d SWEEPS (hold %s)", amount, userID, hold.ID)
	return hold, nil
}

// ReleaseHold returns held funds to the available balance. Releasing an
// already-released hold is a no-op; releasing a settled hold is an error
// (the funds are gone).
func (s *WalletService) ReleaseHold(ctx context.Context, holdID uuid.UUID) error {
	return s.resolveHold(ctx, holdID, false, nil)
}

// SettleHold converts a hold into a permanent debit: balance and held amount
// both drop by the held amount and a SETTLE transaction is appended. Fails
// with ErrInvalidHoldState unless the hold is still active.
func (s *WalletService) SettleHold(ctx context.Context, holdID uuid.UUID) (*models.Transaction, error) {
	var settleTx *models.Transaction
	if err := s.resolveHold(ctx, holdID, true, &settleTx); err != nil {
		return nil, err
	}
	return settleTx, nil
}

func (s *WalletService) resolveHold(ctx context.Context, holdID uuid.UUID, settle bool, out **models.Transaction) error {
	var hold models.Hold
	if err := s.db.WithContext(ctx).First(&hold, "id = ?", holdID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidHoldState
		}
		return fmt.Errorf("failed to load hold: %w", err)
	}

	mu := s.locks.lock(fmt.Sprintf("%d:%s", hold.UserID, hold.Currency))
	defer mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read under the lock; the status may have moved since the first read.
		if err := forUpdate(tx).
			First(&hold, "id = ?", holdID).Error; err != nil {
			return fmt.Errorf("failed to load hold: %w", err)
		}

		switch hold.Status {
		case models.HoldStatusActive:
			// fall through to resolution
		case models.HoldStatusReleased:
			if settle {
				return ErrInvalidHoldState
			}
			return nil // releasing twice is a no-op
		case models.HoldStatusSettled:
			return ErrInvalidHoldState
		default:
			return ErrInvalidHoldState
		}

		var account models.Account
		if err := forUpdate(tx).
			Where("user_id = ? AND currency = ?", hold.UserID, hold.Currency).
			First(&account).Error; err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}

		var entry *models.Transaction
		if settle {
			newBalance := account.Balance.Sub(hold.Amount)
			entry = newLedgerEntry(hold.UserID, hold.Currency, models.TransactionKindSettle,
				hold.Amount, account.Balance, newBalance, "withdrawal_settlement", "")
			account.Balance = newBalance
			hold.Status = models.HoldStatusSettled
		} else {
			entry = newLedgerEntry(hold.UserID, hold.Currency, models.TransactionKindRelease,
				hold.Amount, account.Balance, account.Balance, "withdrawal_hold_release", "")
			hold.Status = models.HoldStatusReleased
		}
		account.HeldAmount = account.HeldAmount.Sub(hold.Amount)

		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
		if err := tx.Save(&account).Error; err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}

		now := time.Now()
		hold.ResolutionTxID = &entry.ID
		hold.ResolvedAt = &now
		if err := tx.Save(&hold).Error; err != nil {
			return fmt.Errorf("failed to update hold: %w", err)
		}

		if out != nil {
			*out = entry
		}
		log.Printf("[Wallet] %s user=%d hold=%s amount=%s", entry.Kind, hold.UserID, hold.ID, hold.Amount)
		return nil
	})
}

// GetHold returns a hold by id.
func (s *WalletService) GetHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var hold models.Hold
	if err := s.db.WithContext(ctx).First(&hold, "id = ?", holdID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidHoldState
		}
		return nil, err
	}
	return &hold, nil
}

// GetBalance returns the account projection for one (user, currency) pair.
func (s *WalletService) GetBalance(ctx context.Context, userID uint, currency models.Currency) (*models.Account, error) {
	if !currency.IsValid() {
		return nil, ErrInvalidCurrency
	}
	var account models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetTransactions returns the account's ledger history, newest first.
func (s *WalletService) GetTransactions(ctx context.Context, userID uint, currency models.Currency, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		Order("seq DESC").
		Limit(limit).Offset(offset).
		Find(&txs).Error
	return txs, err
}

// ReplayBalance recomputes the balance from the full ledger history and checks
// that each entry chains onto the previous one. Used by the audit endpoint and
// the invariant tests.
func (s *WalletService) ReplayBalance(ctx context.Context, userID uint, currency models.Currency) (decimal.Decimal, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		Order("seq ASC").
		Find(&txs).Error
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, t := range txs {
		if !t.PreviousBalance.Equal(balance) {
			return decimal.Zero, fmt.Errorf("ledger chain broken at transaction %s: expected previous balance %s, got %s",
				t.ID, balance, t.PreviousBalance)
		}
		balance = t.NewBalance
	}
	return balance, nil
}

func newLedgerEntry(userID uint, currency models.Currency, kind models.TransactionKind, amount, prev, next decimal.Decimal, reason, referenceID string) *models.Transaction {
	entry := &models.Transaction{
		ID:              uuid.New(),
		UserID:          userID,
		Currency:        currency,
		Kind:            kind,
		Amount:          amount,
		PreviousBalance: prev,
		NewBalance:      next,
		Reason:          reason,
		CreatedAt:       time.Now(),
	}
	if referenceID != "" {
		entry.ReferenceID = &referenceID
	}
	return entry
}

// forUpdate adds a row lock on dialects that support it. sqlite (used by the
// tests) has no FOR UPDATE; there the keyed mutex alone serializes writers.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func findByReference(tx *gorm.DB, userID uint, currency models.Currency, referenceID string) (*models.Transaction, error) {
	var existing models.Transaction
	err := tx.Where("user_id = ? AND currency = ? AND reference_id = ?", userID, currency, referenceID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check reference id: %w", err)
	}
	return &existing, nil
}

func getOrCreateAccount(tx *gorm.DB, userID uint, currency models.Currency) (*models.Account, error) {
	var account models.Account
	err := forUpdate(tx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.Account{
			UserID:     userID,
			Currency:   currency,
			Balance:    decimal.Zero,
			HeldAmount: decimal.Zero,
		}
		if err := tx.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}
