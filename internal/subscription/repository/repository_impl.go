package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() subscriptiondomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var item subscriptiondomain.Subscription
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

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	stmt := db.WithContext(ctx)
	// sqlite has no row locks; its writes serialize anyway.
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var item subscriptiondomain.Subscription
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

func (r *repository) FindLatestByOwner(ctx context.Context, db *gorm.DB, ownerType subscriptiondomain.OwnerType, ownerID string) (*subscriptiondomain.Subscription, error) {
	var item subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("created_at DESC").
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) ListDueForRenewal(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	windowStart := now.AddDate(0, 0, subscriptiondomain.MaxRenewalAttempts)
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.SubscriptionStatusActive).
		Where("auto_renew = ?", true).
		Where("renewal_attempt_count < ?", subscriptiondomain.MaxRenewalAttempts).
		Where("end_at <= ?", windowStart).
		Order("end_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repository) ListActivePastEnd(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.SubscriptionStatusActive).
		Where("end_at < ?", now).
		Order("end_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
