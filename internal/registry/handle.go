package registry

import (
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
)

// Latest is the handle's most recently observed value, quality, and
// timestamp, plus the derived alarm level.
type Latest struct {
	Value     interface{}
	Timestamp time.Time
	Quality   Quality
	Alarm     AlarmLevel
}

// Handle is the runtime state of one registered tag: identity (via Def),
// parsed node id, subscription linkage, and the latest observed value.
// It is owned exclusively by the Registry; other components borrow it
// through the registry's read lock and must not retain a pointer past
// an Unregister/Clear call without re-resolving via Get.
type Handle struct {
	Def    *VariableDefinition
	NodeID *ua.NodeID

	mu     sync.Mutex
	latest Latest

	// Subscription linkage. Zero value (MonitoredItemID == 0,
	// Subscribed == false) means "not currently subscribed". The
	// nonzero id is a local sequential number assigned by the
	// subscription engine, not the server-assigned monitored-item id.
	Subscribed       bool
	MonitoredItemID  uint32
	Browsed          bool
}

// Latest returns a copy of the handle's current value/quality/timestamp.
func (h *Handle) Latest() Latest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// SetLatest overwrites the handle's latest value if it passes the
// deadband check against the previous value (numeric values only; any
// other type always overwrites). Returns the new Latest, whether it was
// applied, and the alarm transition (if any) computed against the
// definition's AlarmLimits.
func (h *Handle) SetLatest(value interface{}, ts time.Time, quality Quality) (updated Latest, applied bool, alarmLevel AlarmLevel, alarmChanged bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f, ok := asFloat(value); ok {
		if prevF, prevOK := asFloat(h.latest.Value); prevOK && h.latest.Quality == QualityGood && quality == QualityGood {
			if abs(f-prevF) < h.Def.Deadband {
				return h.latest, false, h.latest.Alarm, false
			}
		}
		level, changed := checkAlarm(h.Def.AlarmLimits, h.latest.Alarm, f)
		h.latest = Latest{Value: value, Timestamp: ts, Quality: quality, Alarm: level}
		return h.latest, true, level, changed
	}

	h.latest = Latest{Value: value, Timestamp: ts, Quality: quality, Alarm: h.latest.Alarm}
	return h.latest, true, h.latest.Alarm, false
}

// SetSubscription marks the handle as monitored with the given
// monitored-item id, per spec.md §4.6's invariant that every
// subscribed=true handle carries a non-zero id.
func (h *Handle) SetSubscription(monitoredItemID uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Subscribed = true
	h.MonitoredItemID = monitoredItemID
}

// ClearSubscription resets subscription linkage, e.g. after the
// server deletes the subscription or the engine switches modes.
func (h *Handle) ClearSubscription() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Subscribed = false
	h.MonitoredItemID = 0
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint16:
		return float64(n), true
	default:
		return 0, false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
