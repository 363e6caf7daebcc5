package subscription

import "time"

// Mode selects the subscription engine's ingestion strategy. The two
// modes are mutually exclusive at any one time (spec.md §4.6).
type Mode uint8

const (
	ModeNone Mode = iota
	ModePolling
	ModeMonitored
)

func (m Mode) String() string {
	switch m {
	case ModePolling:
		return "polling"
	case ModeMonitored:
		return "monitored"
	default:
		return "none"
	}
}

// Config is the subscription engine's policy, per spec.md §3's
// SubscriptionConfig. Defaults: polling_interval_ms unset (polling
// mode off by default), publishing_interval_ms 500, lifetime_count 60,
// max_keepalive_count 10, priority 0.
type Config struct {
	Mode                 Mode
	PollingInterval      time.Duration
	PublishingInterval   time.Duration
	LifetimeCount        uint32
	MaxKeepAliveCount    uint32
	Priority             uint8
	SubscriptionDebounce time.Duration
}

// DefaultConfig returns spec.md §3's SubscriptionConfig defaults with
// monitored mode selected.
func DefaultConfig() Config {
	return Config{
		Mode:                 ModeMonitored,
		PublishingInterval:   500 * time.Millisecond,
		LifetimeCount:        60,
		MaxKeepAliveCount:    10,
		SubscriptionDebounce: 2 * time.Second,
	}
}
