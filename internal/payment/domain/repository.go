package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentOrder, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentOrder, error)
	Update(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	ListByOwner(ctx context.Context, db *gorm.DB, ownerType, ownerID string) ([]PaymentOrder, error)
}
