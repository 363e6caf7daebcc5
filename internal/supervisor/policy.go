package supervisor

import "time"

// ReconnectPolicy controls backoff timing and keepalive cadence, per
// spec.md §3. Defaults: 1s / 60s / ×2 / 30 / on / 5s / 15s.
type ReconnectPolicy struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	Multiplier        float64
	MaxRetries        int // 0 = infinite
	Exponential       bool
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// DefaultReconnectPolicy returns spec.md §3's defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay:      1 * time.Second,
		MaxDelay:          60 * time.Second,
		Multiplier:        2,
		MaxRetries:        30,
		Exponential:       true,
		KeepaliveInterval: 5 * time.Second,
		KeepaliveTimeout:  15 * time.Second,
	}
}
