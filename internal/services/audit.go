package services

import (
	"context"
	"log"

	"gorm.io/gorm"

	"sweeps-casino/internal/models"
)

// AuditService appends staff/admin actions to the audit trail. Failures are
// logged, never propagated: an audit miss must not fail the underlying action.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Record(ctx context.Context, actorID uint, role models.Role, action, resourceType, resourceID string, details models.JSONB) {
	entry := models.AuditLog{
		ActorID:      actorID,
		ActorRole:    role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("[Audit] Warning: failed to record %s on %s/%s: %v", action, resourceType, resourceID, err)
	}
}
