package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() paymentdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, order *paymentdomain.PaymentOrder) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.PaymentOrder, error) {
	var item paymentdomain.PaymentOrder
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.PaymentOrder, error) {
	stmt := db.WithContext(ctx)
	// sqlite has no row locks; its writes serialize anyway.
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var item paymentdomain.PaymentOrder
	err := stmt.
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, order *paymentdomain.PaymentOrder) error {
	return db.WithContext(ctx).Save(order).Error
}

func (r *repository) ListByOwner(ctx context.Context, db *gorm.DB, ownerType, ownerID string) ([]paymentdomain.PaymentOrder, error) {
	var items []paymentdomain.PaymentOrder
	err := db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}
