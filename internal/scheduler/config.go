package scheduler

// Config controls job cadence and batch sizes. Specs use the cron
// format of robfig/cron (with seconds field disabled).
type Config struct {
	RenewalSpec string
	SweepSpec   string
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		// Renewal attempts are capped at one per subscription per
		// calendar day, so a daily run is the natural cadence.
		RenewalSpec: "0 4 * * *",
		SweepSpec:   "0 * * * *",
		BatchSize:   100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RenewalSpec == "" {
		c.RenewalSpec = defaults.RenewalSpec
	}
	if c.SweepSpec == "" {
		c.SweepSpec = defaults.SweepSpec
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
