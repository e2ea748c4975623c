package query

import (
	"fmt"
	"strings"

	"github.com/duynguyendang/outgassing/pkg/fuzzy"
)

// Match profiles select the fuzzy quality threshold used by name search.
const (
	// ProfileRaw returns the raw top-K matches regardless of quality.
	ProfileRaw = "raw"
	// ProfileStandard keeps matches scoring above 82.
	ProfileStandard = "standard"
	// ProfileStrict keeps matches scoring above 90.
	ProfileStrict = "strict"
)

const (
	StandardThreshold      = 82.0
	StrictThreshold        = 90.0
	DefaultLimit           = 10
	DefaultTopApplications = 10
)

// Config parameterizes the engine for a deployment.
type Config struct {
	// MatchThreshold, when set, keeps only candidates scoring strictly
	// above it, and the candidate list is not capped before row limiting.
	// When nil the matcher returns the raw top `limit` names.
	MatchThreshold *float64
	// DefaultCompliantOnly applies when a name query does not say.
	DefaultCompliantOnly bool
	// IncludeDetails adds manufacturer and WVR to result entries when a
	// query does not say.
	IncludeDetails bool
	DefaultLimit   int
	MatchCacheSize int
	// TopApplications caps the discovery list returned with empty
	// application searches.
	TopApplications int
}

// DefaultConfig returns the raw profile.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:    DefaultLimit,
		MatchCacheSize:  fuzzy.DefaultCacheSize,
		TopApplications: DefaultTopApplications,
	}
}

// Profile returns DefaultConfig with the named match profile applied.
func Profile(name string) (Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileRaw:
	case ProfileStandard:
		t := StandardThreshold
		cfg.MatchThreshold = &t
	case ProfileStrict:
		t := StrictThreshold
		cfg.MatchThreshold = &t
	default:
		return Config{}, fmt.Errorf("unknown match profile %q (want %s, %s or %s)", name, ProfileRaw, ProfileStandard, ProfileStrict)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.TopApplications <= 0 {
		c.TopApplications = DefaultTopApplications
	}
	if c.MatchThreshold != nil {
		t := *c.MatchThreshold
		c.MatchThreshold = &t
	}
	return c
}
