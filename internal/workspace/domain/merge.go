package domain

import "sort"

// MergeRows groups raw rows by workspace id into merged Workspaces.
//
// The set facets (roles, departments, tiers seen) are unions and therefore
// commutative and idempotent: any permutation of the same rows yields the
// same sets, and merging an already-merged set with itself changes
// nothing. FactoryName is the accepted exception: it resolves to the last
// non-empty value in input order.
//
// Workspace ordering follows first appearance in the input, which is what
// makes the resolveCurrent fallback deterministic.
func MergeRows(rows []MembershipRow) []Workspace {
	order := make([]string, 0, len(rows))
	grouped := make(map[string]*mergeAccumulator, len(rows))

	for _, row := range rows {
		if row.WorkspaceID == "" {
			continue
		}
		acc, ok := grouped[row.WorkspaceID]
		if !ok {
			acc = newMergeAccumulator(row)
			grouped[row.WorkspaceID] = acc
			order = append(order, row.WorkspaceID)
		}
		acc.add(row)
	}

	merged := make([]Workspace, 0, len(order))
	for _, id := range order {
		merged = append(merged, grouped[id].workspace())
	}
	return merged
}

// FindWorkspace returns the workspace with the given id, if present.
func FindWorkspace(workspaces []Workspace, id string) (Workspace, bool) {
	for _, ws := range workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return Workspace{}, false
}

type mergeAccumulator struct {
	id          string
	wsType      WorkspaceType
	name        string
	roles       map[string]struct{}
	departments map[string]struct{}
	tiers       map[string]struct{}
	factoryName string
}

func newMergeAccumulator(row MembershipRow) *mergeAccumulator {
	return &mergeAccumulator{
		id:          row.WorkspaceID,
		wsType:      row.WorkspaceType,
		name:        row.WorkspaceName,
		roles:       make(map[string]struct{}),
		departments: make(map[string]struct{}),
		tiers:       make(map[string]struct{}),
	}
}

func (a *mergeAccumulator) add(row MembershipRow) {
	if row.Role != "" {
		a.roles[row.Role] = struct{}{}
	}
	if row.Department != "" {
		a.departments[row.Department] = struct{}{}
	}
	if row.MembershipTier != "" {
		a.tiers[row.MembershipTier] = struct{}{}
	}
	if row.FactoryName != "" {
		a.factoryName = row.FactoryName
	}
	if a.name == "" {
		a.name = row.WorkspaceName
	}
}

func (a *mergeAccumulator) workspace() Workspace {
	return Workspace{
		ID:                  a.id,
		Type:                a.wsType,
		Name:                a.name,
		Roles:               sortedKeys(a.roles),
		Departments:         sortedKeys(a.departments),
		MembershipTiersSeen: sortedKeys(a.tiers),
		FactoryName:         a.factoryName,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
