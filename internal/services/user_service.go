package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"sweeps-casino/internal/models"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// CreateUser registers a player. Balances appear lazily on first credit.
func (s *UserService) CreateUser(ctx context.Context, username string, role models.Role) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if role == "" {
		role = models.RolePlayer
	}

	user := models.User{
		Username:  username,
		Role:      role,
		KYCStatus: models.KYCStatusUnverified,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Printf("[User] Created user %d (%s, role=%s)", user.ID, user.Username, user.Role)
	return &user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d not found", userID)
		}
		return nil, err
	}
	return &user, nil
}

// SetKYCStatus updates the user's KYC standing. Withdrawal requests parked in
// KYC review are re-evaluated by the caller via WithdrawalService.RefreshKYC.
func (s *UserService) SetKYCStatus(ctx context.Context, userID uint, status models.KYCStatus) (*models.User, error) {
	switch status {
	case models.KYCStatusUnverified, models.KYCStatusPending, models.KYCStatusVerified, models.KYCStatusRejected:
	default:
		return nil, fmt.Errorf("unknown kyc status %q", status)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.KYCStatus = status
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to update kyc status: %w", err)
	}
	log.Printf("[User] User %d KYC status set to %s", userID, status)
	return user, nil
}
