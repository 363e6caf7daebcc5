// Package config loads the runtime's startup configuration from a YAML
// file: the variable list an external SQL store would otherwise supply
// (spec.md §6) plus the three policy structs. It is deliberately a thin
// bootstrap loader, not a persistence layer — the core never writes
// back to it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gopcua/opcua/ua"
	"gopkg.in/yaml.v3"

	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/internal/subscription"
	"github.com/scadaworks/opcua-runtime/internal/supervisor"
)

// File is the top-level shape of the YAML bootstrap file.
type File struct {
	Connection   ConnectionSection    `yaml:"connection"`
	Reconnect    ReconnectSection     `yaml:"reconnect"`
	Subscription SubscriptionSection  `yaml:"subscription"`
	Metrics      MetricsSection       `yaml:"metrics"`
	Variables    []VariableSection    `yaml:"variables"`
}

type ConnectionSection struct {
	EndpointURL    string        `yaml:"endpoint_url"`
	SecurityPolicy string        `yaml:"security_policy"`
	Anonymous      bool          `yaml:"anonymous"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ApplicationURI string        `yaml:"application_uri"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

type ReconnectSection struct {
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	Multiplier        float64       `yaml:"multiplier"`
	MaxRetries        int           `yaml:"max_retries"`
	Exponential       bool          `yaml:"exponential"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	KeepaliveTimeout  time.Duration `yaml:"keepalive_timeout"`
}

type SubscriptionSection struct {
	Mode                 string        `yaml:"mode"` // "polling" | "monitored"
	PollingInterval      time.Duration `yaml:"polling_interval"`
	PublishingInterval   time.Duration `yaml:"publishing_interval"`
	LifetimeCount        uint32        `yaml:"lifetime_count"`
	MaxKeepAliveCount    uint32        `yaml:"max_keepalive_count"`
	Priority              uint8        `yaml:"priority"`
	SubscriptionDebounce time.Duration `yaml:"subscription_debounce"`
}

type MetricsSection struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// VariableSection mirrors registry.VariableDefinition field-for-field
// in YAML form; ConversionFunc has no serialized form and is left nil —
// callers wire it programmatically after Load.
type VariableSection struct {
	Tag          string  `yaml:"tag"`
	Address      string  `yaml:"address"`
	Description  string  `yaml:"description"`
	TypeHint     string  `yaml:"type_hint"` // AI|AO|DI|DO|CALC
	Unit         string  `yaml:"unit"`
	EngMin       float64 `yaml:"eng_min"`
	EngMax       float64 `yaml:"eng_max"`
	RawMin       float64 `yaml:"raw_min"`
	RawMax       float64 `yaml:"raw_max"`
	Scale        float64 `yaml:"scale"`
	Offset       float64 `yaml:"offset"`
	Deadband     float64 `yaml:"deadband"`
	LoLo         float64 `yaml:"lolo"`
	Lo           float64 `yaml:"lo"`
	Hi           float64 `yaml:"hi"`
	HiHi         float64 `yaml:"hihi"`
	Writable     bool    `yaml:"writable"`
	AccessGroup  string  `yaml:"access_group"`
	UpdateRateMS int     `yaml:"update_rate_ms"`
	Priority     int     `yaml:"priority"`
}

// Load reads and parses path into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &f, nil
}

// SupervisorConfig translates the connection+reconnect sections into a
// supervisor.Config.
func (f *File) SupervisorConfig() supervisor.Config {
	c := f.Connection
	return supervisor.Config{
		EndpointURL:    c.EndpointURL,
		SecurityPolicy: c.SecurityPolicy,
		SecurityMode:   ua.MessageSecurityModeNone,
		Identity: supervisor.Identity{
			Anonymous: c.Anonymous,
			Username:  c.Username,
			Password:  c.Password,
		},
		ApplicationURI: c.ApplicationURI,
		DialTimeout:    nonZero(c.DialTimeout, 10*time.Second),
		Policy:         f.ReconnectPolicy(),
	}
}

// ReconnectPolicy translates the reconnect section into a
// supervisor.ReconnectPolicy, falling back to the default for any field
// left at its zero value.
func (f *File) ReconnectPolicy() supervisor.ReconnectPolicy {
	d := supervisor.DefaultReconnectPolicy()
	r := f.Reconnect
	if r.InitialDelay > 0 {
		d.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		d.MaxDelay = r.MaxDelay
	}
	if r.Multiplier > 0 {
		d.Multiplier = r.Multiplier
	}
	if r.MaxRetries != 0 {
		d.MaxRetries = r.MaxRetries
	}
	d.Exponential = r.Exponential || d.Exponential
	if r.KeepaliveInterval > 0 {
		d.KeepaliveInterval = r.KeepaliveInterval
	}
	if r.KeepaliveTimeout > 0 {
		d.KeepaliveTimeout = r.KeepaliveTimeout
	}
	return d
}

// SubscriptionConfig translates the subscription section into a
// subscription.Config.
func (f *File) SubscriptionConfig() subscription.Config {
	d := subscription.DefaultConfig()
	s := f.Subscription
	switch s.Mode {
	case "polling":
		d.Mode = subscription.ModePolling
	case "monitored":
		d.Mode = subscription.ModeMonitored
	}
	if s.PollingInterval > 0 {
		d.PollingInterval = s.PollingInterval
	}
	if s.PublishingInterval > 0 {
		d.PublishingInterval = s.PublishingInterval
	}
	if s.LifetimeCount > 0 {
		d.LifetimeCount = s.LifetimeCount
	}
	if s.MaxKeepAliveCount > 0 {
		d.MaxKeepAliveCount = s.MaxKeepAliveCount
	}
	if s.Priority > 0 {
		d.Priority = s.Priority
	}
	if s.SubscriptionDebounce > 0 {
		d.SubscriptionDebounce = s.SubscriptionDebounce
	}
	return d
}

// VariableDefinitions translates the YAML variable list into registry
// definitions, validating each one.
func (f *File) VariableDefinitions() ([]*registry.VariableDefinition, error) {
	defs := make([]*registry.VariableDefinition, 0, len(f.Variables))
	for _, v := range f.Variables {
		def := &registry.VariableDefinition{
			Tag:          v.Tag,
			Address:      v.Address,
			Description:  v.Description,
			TypeHint:     parseTypeHint(v.TypeHint),
			Unit:         parseUnit(v.Unit),
			EngMin:       v.EngMin,
			EngMax:       v.EngMax,
			RawMin:       v.RawMin,
			RawMax:       v.RawMax,
			Scale:        nonZeroFloat(v.Scale, 1),
			Offset:       v.Offset,
			Deadband:     v.Deadband,
			AlarmLimits:  registry.AlarmLimits{LoLo: v.LoLo, Lo: v.Lo, Hi: v.Hi, HiHi: v.HiHi},
			Writable:     v.Writable,
			AccessGroup:  v.AccessGroup,
			UpdateRateMS: v.UpdateRateMS,
			Priority:     v.Priority,
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Tag, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func parseTypeHint(s string) registry.TypeHint {
	switch s {
	case "AO":
		return registry.TypeAO
	case "DI":
		return registry.TypeDI
	case "DO":
		return registry.TypeDO
	case "CALC":
		return registry.TypeCalc
	default:
		return registry.TypeAI
	}
}

func parseUnit(s string) registry.EngineeringUnit {
	switch s {
	case "Temperature":
		return registry.UnitTemperature
	case "Pressure":
		return registry.UnitPressure
	case "Flow":
		return registry.UnitFlow
	case "Level":
		return registry.UnitLevel
	case "Speed":
		return registry.UnitSpeed
	case "Voltage":
		return registry.UnitVoltage
	case "Current":
		return registry.UnitCurrent
	case "Power":
		return registry.UnitPower
	case "Energy":
		return registry.UnitEnergy
	case "Percent":
		return registry.UnitPercent
	case "Count":
		return registry.UnitCount
	case "Time":
		return registry.UnitTime
	case "Frequency":
		return registry.UnitFrequency
	case "Weight":
		return registry.UnitWeight
	case "Length":
		return registry.UnitLength
	default:
		return registry.UnitNone
	}
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func nonZeroFloat(f, fallback float64) float64 {
	if f != 0 {
		return f
	}
	return fallback
}
