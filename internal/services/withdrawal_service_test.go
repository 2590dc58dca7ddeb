package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sweeps-casino/internal/models"
)

type withdrawalFixture struct {
	db         *gorm.DB
	wallet     *WalletService
	users      *UserService
	withdrawal *WithdrawalService
}

func setupWithdrawal(t *testing.T) *withdrawalFixture {
	db := setupTestDB(t)
	wallet := NewWalletService(db)
	return &withdrawalFixture{
		db:         db,
		wallet:     wallet,
		users:      NewUserService(db),
		withdrawal: NewWithdrawalService(db, wallet, NewAuditService(db)),
	}
}

// newPlayer registers a user with the given KYC status and funds their
// SWEEPS account.
func (f *withdrawalFixture) newPlayer(t *testing.T, username string, kyc models.KYCStatus, balance string) *models.User {
	ctx := context.Background()
	user, err := f.users.CreateUser(ctx, username, models.RolePlayer)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if kyc != models.KYCStatusUnverified {
		if _, err := f.users.SetKYCStatus(ctx, user.ID, kyc); err != nil {
			t.Fatalf("failed to set kyc status: %v", err)
		}
		user.KYCStatus = kyc
	}
	if balance != "" {
		if _, err := f.wallet.Credit(ctx, user.ID, models.CurrencySweeps, dec(balance), "purchase_bonus", ""); err != nil {
			t.Fatalf("failed to fund account: %v", err)
		}
	}
	return user
}

func (f *withdrawalFixture) mustAvailable(t *testing.T, userID uint, want string) {
	t.Helper()
	account, err := f.wallet.GetBalance(context.Background(), userID, models.CurrencySweeps)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if !account.Available().Equal(dec(want)) {
		t.Errorf("available = %s, want %s (balance %s, held %s)",
			account.Available(), want, account.Balance, account.HeldAmount)
	}
}

func TestWithdrawalHappyPath(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "alice", models.KYCStatusVerified, "100.00")

	request, err := f.withdrawal.Submit(ctx, player.ID, dec("60.00"), "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	// Verified KYC auto-progresses straight to the staff queue.
	if request.State != models.WithdrawalStateStaffReview {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateStaffReview)
	}
	f.mustAvailable(t, player.ID, "40.00")

	request, err = f.withdrawal.Decide(ctx, request.ID, 50, models.RoleStaff, models.DecisionApprove)
	if err != nil {
		t.Fatalf("staff decision failed: %v", err)
	}
	if request.State != models.WithdrawalStateAdminReview {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateAdminReview)
	}

	request, err = f.withdrawal.Decide(ctx, request.ID, 99, models.RoleAdmin, models.DecisionApprove)
	if err != nil {
		t.Fatalf("admin decision failed: %v", err)
	}
	if request.State != models.WithdrawalStateAdminApproved {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateAdminApproved)
	}
	if request.SettlementTxID == nil {
		t.Error("approved request has no settlement transaction")
	}

	// The held 60 settled; balance dropped, nothing stayed held.
	account, err := f.wallet.GetBalance(ctx, player.ID, models.CurrencySweeps)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if !account.Balance.Equal(dec("40.00")) {
		t.Errorf("balance = %s, want 40.00", account.Balance)
	}
	if !account.HeldAmount.IsZero() {
		t.Errorf("held = %s, want 0", account.HeldAmount)
	}
}

func TestWithdrawalStaffRejectionReleasesHold(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "bob", models.KYCStatusVerified, "100.00")

	request, err := f.withdrawal.Submit(ctx, player.ID, dec("80.00"), "bank_transfer")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	f.mustAvailable(t, player.ID, "20.00")

	request, err = f.withdrawal.Decide(ctx, request.ID, 50, models.RoleStaff, models.DecisionReject)
	if err != nil {
		t.Fatalf("staff rejection failed: %v", err)
	}
	if request.State != models.WithdrawalStateStaffRejected {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateStaffRejected)
	}
	// Full amount is spendable again.
	f.mustAvailable(t, player.ID, "100.00")

	// The rejection terminated the flow; the admin gate never opens.
	if _, err := f.withdrawal.Decide(ctx, request.ID, 99, models.RoleAdmin, models.DecisionApprove); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("admin decide after staff rejection: err = %v, want ErrInvalidTransition", err)
	}

	// Rejection does not block resubmission.
	if _, err := f.withdrawal.Submit(ctx, player.ID, dec("80.00"), ""); err != nil {
		t.Errorf("resubmission after rejection failed: %v", err)
	}
}

func TestWithdrawalInsufficientAvailable(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "carol", models.KYCStatusVerified, "50.00")

	if _, err := f.withdrawal.Submit(ctx, player.ID, dec("50.01"), ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// Synchronous rejection leaves no request and no hold behind.
	var count int64
	f.db.Model(&models.WithdrawalRequest{}).Count(&count)
	if count != 0 {
		t.Errorf("withdrawal requests = %d, want 0", count)
	}
	f.db.Model(&models.Hold{}).Count(&count)
	if count != 0 {
		t.Errorf("holds = %d, want 0", count)
	}
	f.mustAvailable(t, player.ID, "50.00")
}

func TestWithdrawalParksUntilKYCVerified(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "dave", models.KYCStatusPending, "100.00")

	request, err := f.withdrawal.Submit(ctx, player.ID, dec("30.00"), "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if request.State != models.WithdrawalStateKYCPending {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateKYCPending)
	}

	// Staff cannot decide before the request reaches the staff gate.
	if _, err := f.withdrawal.Decide(ctx, request.ID, 50, models.RoleStaff, models.DecisionApprove); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("early staff decide: err = %v, want ErrInvalidTransition", err)
	}

	if _, err := f.users.SetKYCStatus(ctx, player.ID, models.KYCStatusVerified); err != nil {
		t.Fatalf("failed to verify kyc: %v", err)
	}
	if err := f.withdrawal.RefreshKYC(ctx, player.ID); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	request, err = f.withdrawal.GetByID(ctx, request.ID)
	if err != nil {
		t.Fatalf("failed to reload request: %v", err)
	}
	if request.State != models.WithdrawalStateStaffReview {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateStaffReview)
	}
}

func TestWithdrawalKYCRejectionTerminates(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "erin", models.KYCStatusPending, "100.00")

	request, err := f.withdrawal.Submit(ctx, player.ID, dec("30.00"), "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := f.users.SetKYCStatus(ctx, player.ID, models.KYCStatusRejected); err != nil {
		t.Fatalf("failed to reject kyc: %v", err)
	}
	if err := f.withdrawal.RefreshKYC(ctx, player.ID); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	request, err = f.withdrawal.GetByID(ctx, request.ID)
	if err != nil {
		t.Fatalf("failed to reload request: %v", err)
	}
	if request.State != models.WithdrawalStateAdminRejected {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateAdminRejected)
	}
	f.mustAvailable(t, player.ID, "100.00")
}

func TestWithdrawalRoleGates(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "frank", models.KYCStatusVerified, "100.00")

	request, err := f.withdrawal.Submit(ctx, player.ID, dec("10.00"), "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// A player has no say at any gate.
	if _, err := f.withdrawal.Decide(ctx, request.ID, player.ID, models.RolePlayer, models.DecisionApprove); !errors.Is(err, ErrForbidden) {
		t.Errorf("player decide: err = %v, want ErrForbidden", err)
	}

	// The review is multi-party: the staff gate takes staff only. An admin
	// deciding here would collapse both gates into one actor.
	if _, err := f.withdrawal.Decide(ctx, request.ID, 99, models.RoleAdmin, models.DecisionApprove); !errors.Is(err, ErrForbidden) {
		t.Errorf("admin at staff gate: err = %v, want ErrForbidden", err)
	}

	request, err = f.withdrawal.Decide(ctx, request.ID, 50, models.RoleStaff, models.DecisionApprove)
	if err != nil {
		t.Fatalf("staff decision failed: %v", err)
	}
	if request.State != models.WithdrawalStateAdminReview {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateAdminReview)
	}

	// Staff may not cover the admin gate either.
	if _, err := f.withdrawal.Decide(ctx, request.ID, 50, models.RoleStaff, models.DecisionApprove); !errors.Is(err, ErrForbidden) {
		t.Errorf("staff at admin gate: err = %v, want ErrForbidden", err)
	}

	request, err = f.withdrawal.Decide(ctx, request.ID, 99, models.RoleAdmin, models.DecisionApprove)
	if err != nil {
		t.Fatalf("admin decision failed: %v", err)
	}
	if request.State != models.WithdrawalStateAdminApproved {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateAdminApproved)
	}
}

func TestWithdrawalDecisionIdempotent(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "grace", models.KYCStatusVerified, "100.00")

	request, err := f.withdrawal.Submit(ctx, player.ID, dec("40.00"), "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.withdrawal.Decide(ctx, request.ID, 50, models.RoleStaff, models.DecisionApprove); err != nil {
		t.Fatalf("staff decision failed: %v", err)
	}
	if _, err := f.withdrawal.Decide(ctx, request.ID, 99, models.RoleAdmin, models.DecisionApprove); err != nil {
		t.Fatalf("admin decision failed: %v", err)
	}

	// Replaying the same decision returns the request unchanged; a
	// conflicting one is a transition error. Either way the balance moves
	// exactly once.
	if _, err := f.withdrawal.Decide(ctx, request.ID, 99, models.RoleAdmin, models.DecisionApprove); err != nil {
		t.Errorf("replayed admin approval: err = %v, want nil", err)
	}
	if _, err := f.withdrawal.Decide(ctx, request.ID, 99, models.RoleAdmin, models.DecisionReject); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("conflicting admin decision: err = %v, want ErrInvalidTransition", err)
	}

	account, err := f.wallet.GetBalance(ctx, player.ID, models.CurrencySweeps)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if !account.Balance.Equal(dec("60.00")) {
		t.Errorf("balance = %s, want 60.00", account.Balance)
	}

	var settles int64
	f.db.Model(&models.Transaction{}).Where("kind = ?", models.TransactionKindSettle).Count(&settles)
	if settles != 1 {
		t.Errorf("settle transactions = %d, want 1", settles)
	}
}

func TestWithdrawalCancel(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "heidi", models.KYCStatusVerified, "100.00")
	other := f.newPlayer(t, "ivan", models.KYCStatusVerified, "")

	request, err := f.withdrawal.Submit(ctx, player.ID, dec("25.00"), "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := f.withdrawal.Cancel(ctx, request.ID, other.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("cancel by non-owner: err = %v, want ErrForbidden", err)
	}

	request, err = f.withdrawal.Cancel(ctx, request.ID, player.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if request.State != models.WithdrawalStateCancelled {
		t.Fatalf("state = %s, want %s", request.State, models.WithdrawalStateCancelled)
	}
	f.mustAvailable(t, player.ID, "100.00")

	// Cancelling again is a no-op.
	if _, err := f.withdrawal.Cancel(ctx, request.ID, player.ID); err != nil {
		t.Errorf("repeated cancel: err = %v, want nil", err)
	}

	// A decided request can no longer be cancelled.
	request2, err := f.withdrawal.Submit(ctx, player.ID, dec("25.00"), "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.withdrawal.Decide(ctx, request2.ID, 50, models.RoleStaff, models.DecisionApprove); err != nil {
		t.Fatalf("staff decision failed: %v", err)
	}
	if _, err := f.withdrawal.Cancel(ctx, request2.ID, player.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel after staff approval: err = %v, want ErrInvalidTransition", err)
	}
}

func TestWithdrawalOnePendingPerUser(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "judy", models.KYCStatusVerified, "100.00")

	if _, err := f.withdrawal.Submit(ctx, player.ID, dec("10.00"), ""); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.withdrawal.Submit(ctx, player.ID, dec("10.00"), ""); !errors.Is(err, ErrPendingWithdrawal) {
		t.Fatalf("second submit: err = %v, want ErrPendingWithdrawal", err)
	}
}

func TestWithdrawalConcurrentSubmitsPlaceOneHold(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "leo", models.KYCStatusVerified, "100.00")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.withdrawal.Submit(ctx, player.ID, dec("10.00"), "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var accepted, rejected int
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrPendingWithdrawal):
			rejected++
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Fatalf("submits: %d accepted, %d rejected, want 1 and 1", accepted, rejected)
	}

	var holds int64
	f.db.Model(&models.Hold{}).Where("status = ?", models.HoldStatusActive).Count(&holds)
	if holds != 1 {
		t.Errorf("active holds = %d, want 1", holds)
	}
	f.mustAvailable(t, player.ID, "90.00")
}

func TestWithdrawalSubmitRejectsBadAmount(t *testing.T) {
	f := setupWithdrawal(t)
	ctx := context.Background()

	player := f.newPlayer(t, "karl", models.KYCStatusVerified, "100.00")

	if _, err := f.withdrawal.Submit(ctx, player.ID, decimal.Zero, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := f.withdrawal.Submit(ctx, player.ID, dec("-5"), ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: err = %v, want ErrInvalidAmount", err)
	}
}
