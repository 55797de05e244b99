package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weldvault/weldvault/internal/plan"
	entitlementdomain "github.com/weldvault/weldvault/internal/entitlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResourceUsage keeps one running counter per workspace and resource
// kind. Collaborator services report usage here; quota checks only read.
type ResourceUsage struct {
	WorkspaceID  string    `gorm:"primaryKey;type:text"`
	ResourceKind string    `gorm:"primaryKey;type:text"`
	Amount       int64     `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ResourceUsage) TableName() string { return "workspace_resource_usage" }

type usageCounter struct {
	db *gorm.DB
}

// ProvideCounters returns the gorm-backed usage counter as both its read
// and write interfaces.
func ProvideCounters(db *gorm.DB) (entitlementdomain.CountProvider, entitlementdomain.UsageRecorder) {
	counter := &usageCounter{db: db}
	return counter, counter
}

func (c *usageCounter) CurrentCount(ctx context.Context, workspaceID string, kind plan.ResourceKind) (int64, error) {
	var usage ResourceUsage
	err := c.db.WithContext(ctx).
		Where("workspace_id = ? AND resource_kind = ?", workspaceID, string(kind)).
		First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return usage.Amount, nil
}

// Record upserts the counter to an absolute value, as reported by the
// owning collaborator service.
func (c *usageCounter) Record(ctx context.Context, workspaceID string, kind plan.ResourceKind, amount int64) error {
	usage := ResourceUsage{
		WorkspaceID:  workspaceID,
		ResourceKind: string(kind),
		Amount:       amount,
	}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "resource_kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).
		Create(&usage).Error
}
