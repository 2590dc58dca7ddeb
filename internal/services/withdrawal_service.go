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

	"sweeps-casino/internal/models"
)

// WithdrawalService drives one state machine per withdrawal request:
//
//	SUBMITTED -> KYC_PENDING -> KYC_VERIFIED -> STAFF_REVIEW -> STAFF_APPROVED
//	          -> ADMIN_REVIEW -> ADMIN_APPROVED | ADMIN_REJECTED
//
// with STAFF_REJECTED as an early exit and CANCELLED reachable from any state
// before a human decision is recorded. The hold is placed before the request
// row exists, and exactly one of settle/release ever runs per request.
type WithdrawalService struct {
	db     *gorm.DB
	wallet *WalletService
	audit  *AuditService
	locks  *accountLocks
}

func NewWithdrawalService(db *gorm.DB, wallet *WalletService, audit *AuditService) *WithdrawalService {
	return &WithdrawalService{
		db:     db,
		wallet: wallet,
		audit:  audit,
		locks:  newAccountLocks(),
	}
}

// Submit places the hold and persists the request. An insufficient available
// balance rejects synchronously and leaves nothing behind. A user may have at
// most one request in flight.
func (s *WithdrawalService) Submit(ctx context.Context, userID uint, amount decimal.Decimal, method string) (*models.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if method == "" {
		method = "bank_transfer"
	}

	// One submission at a time per user, so two concurrent submits cannot
	// both pass the pending check and place two holds.
	mu := s.locks.lock(fmt.Sprintf("submit:%d", userID))
	defer mu.Unlock()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var pending int64
	err := s.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("user_id = ? AND state NOT IN ?", userID, terminalStates()).
		Count(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check pending withdrawals: %w", err)
	}
	if pending > 0 {
		return nil, ErrPendingWithdrawal
	}

	// Hold first. If this fails the request is never persisted.
	hold, err := s.wallet.Hold(ctx, userID, amount)
	if err != nil {
		return nil, err
	}

	request := &models.WithdrawalRequest{
		ID:                uuid.New(),
		UserID:            userID,
		AmountRequested:   amount,
		Method:            method,
		KYCStatusAtSubmit: user.KYCStatus,
		State:             models.WithdrawalStateSubmitted,
		HoldID:            hold.ID,
		SubmittedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		// Persisting failed; give the funds back so the hold doesn't leak.
		if rbErr := s.wallet.ReleaseHold(ctx, hold.ID); rbErr != nil {
			log.Printf("[Withdrawal] Critical: failed to release hold %s after create failure: %v", hold.ID, rbErr)
		}
		return nil, fmt.Errorf("failed to persist withdrawal request: %w", err)
	}

	log.Printf("[Withdrawal] Request %s submitted by user %d for %s SWEEPS", request.ID, userID, amount)

	if err := s.progress(ctx, request, &user); err != nil {
		return nil, err
	}
	return request, nil
}

// progress advances every automatic (non-human) transition the request is
// eligible for: submission queueing, KYC evaluation and review queueing.
func (s *WithdrawalService) progress(ctx context.Context, request *models.WithdrawalRequest, user *models.User) error {
	for {
		var next models.WithdrawalState

		switch request.State {
		case models.WithdrawalStateSubmitted:
			next = models.WithdrawalStateKYCPending
		case models.WithdrawalStateKYCPending:
			if user == nil {
				return nil
			}
			switch user.KYCStatus {
			case models.KYCStatusVerified:
				next = models.WithdrawalStateKYCVerified
			case models.KYCStatusRejected:
				// KYC rejection terminates the request outright.
				return s.terminate(ctx, request, models.WithdrawalStateAdminRejected, false)
			default:
				return nil // parked until KYC resolves
			}
		case models.WithdrawalStateKYCVerified:
			next = models.WithdrawalStateStaffReview
		case models.WithdrawalStateStaffApproved:
			next = models.WithdrawalStateAdminReview
		default:
			return nil
		}

		request.State = next
		if err := s.db.WithContext(ctx).Save(request).Error; err != nil {
			return fmt.Errorf("failed to advance withdrawal %s: %w", request.ID, err)
		}
	}
}

// Decide records a staff or admin decision. The actor's role must match the
// request's current gate; decisions on terminal requests are idempotent when
// they match what was already decided.
func (s *WithdrawalService) Decide(ctx context.Context, requestID uuid.UUID, actorID uint, actorRole models.Role, decision models.Decision) (*models.WithdrawalRequest, error) {
	if decision != models.DecisionApprove && decision != models.DecisionReject {
		return nil, fmt.Errorf("unknown decision %q", decision)
	}

	mu := s.locks.lock("withdrawal:" + requestID.String())
	defer mu.Unlock()

	request, err := s.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.State.IsTerminal() {
		if replayed := decisionReplayed(request, actorRole, decision); replayed {
			return request, nil
		}
		return nil, ErrInvalidTransition
	}

	switch request.State {
	case models.WithdrawalStateStaffReview:
		// The review is multi-party: an admin may not stand in for staff,
		// otherwise one actor could drive a request through both gates.
		if actorRole != models.RoleStaff {
			return nil, ErrForbidden
		}
		return s.decideStaff(ctx, request, actorID, actorRole, decision)
	case models.WithdrawalStateAdminReview:
		if actorRole != models.RoleAdmin {
			return nil, ErrForbidden
		}
		return s.decideAdmin(ctx, request, actorID, decision)
	default:
		// Deciding before the request reached the matching gate (for example
		// staff approving while KYC is still pending) is an ordering error.
		return nil, ErrInvalidTransition
	}
}

func (s *WithdrawalService) decideStaff(ctx context.Context, request *models.WithdrawalRequest, actorID uint, actorRole models.Role, decision models.Decision) (*models.WithdrawalRequest, error) {
	request.StaffDecision = &decision
	request.StaffActorID = &actorID

	if decision == models.DecisionReject {
		if err := s.terminate(ctx, request, models.WithdrawalStateStaffRejected, false); err != nil {
			return nil, err
		}
	} else {
		request.State = models.WithdrawalStateStaffApproved
		if err := s.db.WithContext(ctx).Save(request).Error; err != nil {
			return nil, fmt.Errorf("failed to record staff decision: %w", err)
		}
		if err := s.progress(ctx, request, nil); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, actorID, actorRole, "withdrawal_staff_decision", "withdrawal_request", request.ID.String(),
		models.JSONB{"decision": decision, "state": request.State})
	log.Printf("[Withdrawal] Staff %s request %s (actor %d)", decision, request.ID, actorID)
	return request, nil
}

func (s *WithdrawalService) decideAdmin(ctx context.Context, request *models.WithdrawalRequest, actorID uint, decision models.Decision) (*models.WithdrawalRequest, error) {
	request.AdminDecision = &decision
	request.AdminActorID = &actorID

	if decision == models.DecisionApprove {
		// The only path that permanently debits the balance.
		settleTx, err := s.wallet.SettleHold(ctx, request.HoldID)
		if err != nil {
			return nil, err
		}
		request.SettlementTxID = &settleTx.ID
		if err := s.terminate(ctx, request, models.WithdrawalStateAdminApproved, true); err != nil {
			return nil, err
		}
	} else {
		if err := s.terminate(ctx, request, models.WithdrawalStateAdminRejected, false); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, actorID, models.RoleAdmin, "withdrawal_admin_decision", "withdrawal_request", request.ID.String(),
		models.JSONB{"decision": decision, "state": request.State})
	log.Printf("[Withdrawal] Admin %s request %s (actor %d)", decision, request.ID, actorID)
	return request, nil
}

// Cancel lets the owner withdraw the request while no human decision has been
// recorded yet. The hold is released synchronously.
func (s *WithdrawalService) Cancel(ctx context.Context, requestID uuid.UUID, userID uint) (*models.WithdrawalRequest, error) {
	mu := s.locks.lock("withdrawal:" + requestID.String())
	defer mu.Unlock()

	request, err := s.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		return nil, ErrForbidden
	}

	switch request.State {
	case models.WithdrawalStateSubmitted,
		models.WithdrawalStateKYCPending,
		models.WithdrawalStateKYCVerified,
		models.WithdrawalStateStaffReview:
		// cancellable
	case models.WithdrawalStateCancelled:
		return request, nil
	default:
		return nil, ErrInvalidTransition
	}

	if err := s.terminate(ctx, request, models.WithdrawalStateCancelled, false); err != nil {
		return nil, err
	}
	log.Printf("[Withdrawal] Request %s cancelled by user %d", request.ID, userID)
	return request, nil
}

// terminate moves the request into a terminal state and resolves the hold.
// settled=true means the hold was already settled by the caller; otherwise it
// is released here.
func (s *WithdrawalService) terminate(ctx context.Context, request *models.WithdrawalRequest, state models.WithdrawalState, settled bool) error {
	if !settled {
		if err := s.wallet.ReleaseHold(ctx, request.HoldID); err != nil {
			return err
		}
	}

	now := time.Now()
	request.State = state
	request.DecidedAt = &now
	if err := s.db.WithContext(ctx).Save(request).Error; err != nil {
		return fmt.Errorf("failed to finalize withdrawal %s: %w", request.ID, err)
	}
	return nil
}

// RefreshKYC re-evaluates requests parked in KYC_PENDING for the user. Called
// after the user's KYC standing changes.
func (s *WithdrawalService) RefreshKYC(ctx context.Context, userID uint) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	var parked []models.WithdrawalRequest
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, models.WithdrawalStateKYCPending).
		Find(&parked).Error
	if err != nil {
		return err
	}

	for i := range parked {
		mu := s.locks.lock("withdrawal:" + parked[i].ID.String())
		err := s.progress(ctx, &parked[i], &user)
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns one withdrawal request.
func (s *WithdrawalService) GetByID(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	if err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &request, nil
}

// ListByState returns the review queue for one state, newest first.
func (s *WithdrawalService) ListByState(ctx context.Context, state models.WithdrawalState, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var requests []models.WithdrawalRequest
	err := s.db.WithContext(ctx).
		Where("state = ?", state).
		Order("submitted_at DESC").
		Limit(limit).Offset(offset).
		Find(&requests).Error
	return requests, err
}

// ListByUser returns the user's requests, newest first.
func (s *WithdrawalService) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var requests []models.WithdrawalRequest
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Limit(limit).Offset(offset).
		Find(&requests).Error
	return requests, err
}

func decisionReplayed(request *models.WithdrawalRequest, role models.Role, decision models.Decision) bool {
	switch role {
	case models.RoleAdmin:
		return request.AdminDecision != nil && *request.AdminDecision == decision
	case models.RoleStaff:
		return request.StaffDecision != nil && *request.StaffDecision == decision
	}
	return false
}

func terminalStates() []models.WithdrawalState {
	return []models.WithdrawalState{
		models.WithdrawalStateStaffRejected,
		models.WithdrawalStateAdminApproved,
		models.WithdrawalStateAdminRejected,
		models.WithdrawalStateCancelled,
	}
}
