package repository

import (
	"context"
	"errors"
	"time"

	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type membershipSource struct {
	db *gorm.DB
}

// ProvideMembershipSource reads the membership rows the identity service
// maintains. Rows come back in insertion order, which is the stable input
// order the merge relies on.
func ProvideMembershipSource(db *gorm.DB) workspacedomain.MembershipSource {
	return &membershipSource{db: db}
}

func (s *membershipSource) ListRows(ctx context.Context, principalID string) ([]workspacedomain.MembershipRow, error) {
	var records []workspacedomain.MembershipRecord
	err := s.db.WithContext(ctx).
		Where("principal_id = ?", principalID).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	rows := make([]workspacedomain.MembershipRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.Row())
	}
	return rows, nil
}

type pointerRepository struct {
	db *gorm.DB
}

// ProvidePointerRepository stores the server-side current-workspace
// pointer per principal.
func ProvidePointerRepository(db *gorm.DB) workspacedomain.PointerRepository {
	return &pointerRepository{db: db}
}

func (r *pointerRepository) Get(ctx context.Context, principalID string) (string, error) {
	var pointer workspacedomain.WorkspacePointer
	err := r.db.WithContext(ctx).
		Where("principal_id = ?", principalID).
		First(&pointer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return pointer.WorkspaceID, nil
}

func (r *pointerRepository) Set(ctx context.Context, principalID, workspaceID string) error {
	pointer := workspacedomain.WorkspacePointer{
		PrincipalID: principalID,
		WorkspaceID: workspaceID,
		UpdatedAt:   time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "principal_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"workspace_id", "updated_at"}),
		}).
		Create(&pointer).Error
}
