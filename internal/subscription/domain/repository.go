package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindLatestByOwner(ctx context.Context, db *gorm.DB, ownerType OwnerType, ownerID string) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	ListDueForRenewal(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	ListActivePastEnd(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
}
