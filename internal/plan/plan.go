// Package plan holds the membership tier catalog: the static mapping from
// tier to per-resource quota limits. The catalog is versioned by deployment
// and never mutated at runtime.
package plan

// Tier identifies a membership plan tier.
type Tier string

const (
	TierFree               Tier = "free"
	TierPersonalPro        Tier = "personal_pro"
	TierPersonalFlagship   Tier = "personal_flagship"
	TierEnterpriseBasic    Tier = "enterprise_basic"
	TierEnterprisePro      Tier = "enterprise_pro"
	TierEnterpriseFlagship Tier = "enterprise_flagship"
)

// ResourceKind names a quota-governed resource.
type ResourceKind string

const (
	ResourceDocuments ResourceKind = "documents"
	ResourceEmployees ResourceKind = "employees"
	ResourceFactories ResourceKind = "factories"
	ResourceStorageMB ResourceKind = "storage_mb"
)

// QuotaLimits is the per-resource quota set granted by a tier.
type QuotaLimits struct {
	Documents int64 `mapstructure:"documents" json:"documents"`
	Employees int64 `mapstructure:"employees" json:"employees"`
	Factories int64 `mapstructure:"factories" json:"factories"`
	StorageMB int64 `mapstructure:"storage_mb" json:"storage_mb"`
}

// Limit returns the limit for a resource kind.
func (q QuotaLimits) Limit(kind ResourceKind) (int64, bool) {
	switch kind {
	case ResourceDocuments:
		return q.Documents, true
	case ResourceEmployees:
		return q.Employees, true
	case ResourceFactories:
		return q.Factories, true
	case ResourceStorageMB:
		return q.StorageMB, true
	default:
		return 0, false
	}
}

// Catalog maps tiers to their quota limits.
type Catalog struct {
	tiers map[Tier]QuotaLimits
}

// NewCatalog builds a catalog from a tier table. Missing tiers fall back
// to the free tier on lookup.
func NewCatalog(tiers map[Tier]QuotaLimits) Catalog {
	copied := make(map[Tier]QuotaLimits, len(tiers))
	for tier, limits := range tiers {
		copied[tier] = limits
	}
	return Catalog{tiers: copied}
}

// Lookup returns the quota limits for a tier.
func (c Catalog) Lookup(tier Tier) (QuotaLimits, bool) {
	limits, ok := c.tiers[tier]
	return limits, ok
}

// Quotas returns the limits for a tier, degrading unknown tiers to free.
func (c Catalog) Quotas(tier Tier) QuotaLimits {
	if limits, ok := c.tiers[tier]; ok {
		return limits
	}
	return c.tiers[TierFree]
}

// Known reports whether the tier exists in the catalog.
func (c Catalog) Known(tier Tier) bool {
	_, ok := c.tiers[tier]
	return ok
}

// DefaultTiers is the compiled-in tier table, overridable via plans.yml.
func DefaultTiers() map[Tier]QuotaLimits {
	return map[Tier]QuotaLimits{
		TierFree:               {Documents: 10, Employees: 3, Factories: 1, StorageMB: 100},
		TierPersonalPro:        {Documents: 100, Employees: 10, Factories: 2, StorageMB: 1024},
		TierPersonalFlagship:   {Documents: 500, Employees: 25, Factories: 5, StorageMB: 5120},
		TierEnterpriseBasic:    {Documents: 1000, Employees: 50, Factories: 10, StorageMB: 10240},
		TierEnterprisePro:      {Documents: 5000, Employees: 200, Factories: 30, StorageMB: 51200},
		TierEnterpriseFlagship: {Documents: 20000, Employees: 1000, Factories: 100, StorageMB: 204800},
	}
}
