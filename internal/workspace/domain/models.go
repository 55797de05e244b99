// Package domain contains the workspace registry models: raw membership
// rows as supplied by the identity layer, and the merged Workspace view.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// WorkspaceType distinguishes a personal account context from an
// enterprise one.
type WorkspaceType string

const (
	WorkspaceTypePersonal   WorkspaceType = "personal"
	WorkspaceTypeEnterprise WorkspaceType = "enterprise"
)

// RoleOwner marks the enterprise owner; owners do not inherit the company
// tier, they hold it.
const RoleOwner = "owner"

// MembershipRow is one raw fact from the identity/authorization source.
// A principal may hold several rows for the same workspace (two department
// assignments, say). Optional fields are empty strings when absent; rows
// with missing optional fields are merged as-is, never rejected.
type MembershipRow struct {
	WorkspaceID    string
	WorkspaceType  WorkspaceType
	WorkspaceName  string
	Role           string
	Department     string
	MembershipTier string
	FactoryName    string
}

// Workspace is the merged, de-duplicated view over a principal's rows for
// one workspace id. It is always rebuilt from source rows, never mutated
// in place.
type Workspace struct {
	ID                  string   `json:"id"`
	Type                WorkspaceType `json:"type"`
	Name                string   `json:"name"`
	Roles               []string `json:"roles"`
	Departments         []string `json:"departments"`
	MembershipTiersSeen []string `json:"membership_tiers_seen"`
	// FactoryName keeps the last non-empty value in input order; this is
	// the one documented order-sensitive exception to the otherwise
	// order-independent merge.
	FactoryName string `json:"factory_name,omitempty"`
}

// HasRole reports whether the merged role set contains role.
func (w Workspace) HasRole(role string) bool {
	for _, r := range w.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MembershipRecord is the persisted form of a membership row. The identity
// service owns writes; this subsystem only reads.
type MembershipRecord struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	PrincipalID    string       `gorm:"type:text;not null;index"`
	WorkspaceID    string       `gorm:"type:text;not null"`
	WorkspaceType  string       `gorm:"type:text;not null"`
	WorkspaceName  string       `gorm:"type:text;not null"`
	Role           string       `gorm:"type:text;not null"`
	Department     *string      `gorm:"type:text"`
	MembershipTier *string      `gorm:"type:text"`
	FactoryName    *string      `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MembershipRecord) TableName() string { return "workspace_membership_rows" }

// Row converts the persisted record into the raw row shape.
func (m MembershipRecord) Row() MembershipRow {
	row := MembershipRow{
		WorkspaceID:   m.WorkspaceID,
		WorkspaceType: WorkspaceType(m.WorkspaceType),
		WorkspaceName: m.WorkspaceName,
		Role:          m.Role,
	}
	if m.Department != nil {
		row.Department = *m.Department
	}
	if m.MembershipTier != nil {
		row.MembershipTier = *m.MembershipTier
	}
	if m.FactoryName != nil {
		row.FactoryName = *m.FactoryName
	}
	return row
}

// WorkspacePointer is the server's notion of a principal's current
// workspace. The client-side cache may disagree until reconciled.
type WorkspacePointer struct {
	PrincipalID string    `gorm:"primaryKey;type:text"`
	WorkspaceID string    `gorm:"type:text;not null"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (WorkspacePointer) TableName() string { return "workspace_pointers" }
