package plan

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CatalogHolder exposes the currently loaded tier catalog. The catalog can
// be overridden via plans.yml; file changes are hot reloaded, invalid
// configs are ignored so a bad deploy never drops quotas to zero.
type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

func NewCatalogHolder() (*CatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/weldvault/config")
	v.AddConfigPath("/etc/weldvault")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WELDVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &CatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(NewCatalog(DefaultTiers()))
		return holder, nil
	}

	catalog, err := catalogFromViper(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := catalogFromViper(v)
		if err != nil {
			log.Printf("[plan-catalog] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-catalog] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticHolder wraps a fixed catalog, bypassing config files. Used in
// tests and embedded setups.
func NewStaticHolder(catalog Catalog) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

// Catalog returns the active catalog.
func (h *CatalogHolder) Catalog() Catalog {
	return h.current.Load().(Catalog)
}

func catalogFromViper(v *viper.Viper) (Catalog, error) {
	var raw map[string]QuotaLimits
	if err := v.UnmarshalKey("plans", &raw); err != nil {
		return Catalog{}, err
	}

	tiers := DefaultTiers()
	for name, limits := range raw {
		tiers[Tier(strings.ToLower(strings.TrimSpace(name)))] = limits
	}
	if err := validateTiers(tiers); err != nil {
		return Catalog{}, err
	}
	return NewCatalog(tiers), nil
}

func validateTiers(tiers map[Tier]QuotaLimits) error {
	if _, ok := tiers[TierFree]; !ok {
		return errors.New("plans: free tier is required")
	}
	for tier, limits := range tiers {
		if limits.Documents < 0 || limits.Employees < 0 || limits.Factories < 0 || limits.StorageMB < 0 {
			return errors.New("plans: negative limit for tier " + string(tier))
		}
	}
	return nil
}
