// Package seed bootstraps demo data for local development and end-to-end
// tests. Production deployments never run it; membership rows are owned by
// the identity service there.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
	"gorm.io/gorm"
)

const (
	// DemoPrincipalID is the principal all demo rows belong to.
	DemoPrincipalID = "demo-user"
	// DemoPersonalWorkspaceID is the demo principal's personal workspace.
	DemoPersonalWorkspaceID = "demo-user"
	// DemoCompanyWorkspaceID is the enterprise workspace the demo
	// principal is a member of.
	DemoCompanyWorkspaceID = "acme-welding"
)

func strptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// EnsureDemoMembership seeds the demo principal's membership rows,
// including a duplicate enterprise row so the merge path is visible in
// dev setups. Idempotent.
func EnsureDemoMembership(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(9)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&workspacedomain.MembershipRecord{}).
			Where("principal_id = ?", DemoPrincipalID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		rows := []workspacedomain.MembershipRecord{
			{
				ID:            node.Generate(),
				PrincipalID:   DemoPrincipalID,
				WorkspaceID:   DemoPersonalWorkspaceID,
				WorkspaceType: string(workspacedomain.WorkspaceTypePersonal),
				WorkspaceName: "Demo User",
				Role:          "owner",
			},
			{
				ID:             node.Generate(),
				PrincipalID:    DemoPrincipalID,
				WorkspaceID:    DemoCompanyWorkspaceID,
				WorkspaceType:  string(workspacedomain.WorkspaceTypeEnterprise),
				WorkspaceName:  "Acme Welding",
				Role:           "member",
				Department:     strptr("fabrication"),
				MembershipTier: strptr("enterprise_pro"),
				FactoryName:    strptr("north-yard"),
			},
			{
				ID:             node.Generate(),
				PrincipalID:    DemoPrincipalID,
				WorkspaceID:    DemoCompanyWorkspaceID,
				WorkspaceType:  string(workspacedomain.WorkspaceTypeEnterprise),
				WorkspaceName:  "Acme Welding",
				Role:           "inspector",
				Department:     strptr("quality"),
				MembershipTier: strptr("enterprise_pro"),
				FactoryName:    strptr("south-yard"),
			},
		}

		return tx.Create(&rows).Error
	})
}
