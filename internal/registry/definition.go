package registry

import "github.com/scadaworks/opcua-runtime/internal/errs"

// TypeHint selects the default codec behavior and write permission for
// a variable, per spec.md §3.
type TypeHint uint8

const (
	TypeAI   TypeHint = iota // analog input
	TypeAO                   // analog output
	TypeDI                   // discrete input
	TypeDO                   // discrete output
	TypeCalc                 // calculated / derived
)

func (t TypeHint) String() string {
	switch t {
	case TypeAI:
		return "AI"
	case TypeAO:
		return "AO"
	case TypeDI:
		return "DI"
	case TypeDO:
		return "DO"
	case TypeCalc:
		return "CALC"
	default:
		return "Unknown"
	}
}

// ConversionFunc is an optional per-variable engineering-unit conversion
// hook, applied by VariableDefinition.ApplyScale. The pipeline and the
// subscription engine do not call ApplyScale: they store and compare the
// decoded wire value as is.
// There is no global conversion-manager singleton in this runtime (see
// DESIGN.md, Open Question #2) — callers needing a shared conversion
// inject the same function into every relevant definition.
type ConversionFunc func(raw float64) float64

// VariableDefinition is the immutable identity + configuration of a
// registered tag. It is shared, read-only after registration.
type VariableDefinition struct {
	Tag         string
	Address     string
	Description string
	TypeHint    TypeHint
	Unit        EngineeringUnit

	EngMin, EngMax float64
	RawMin, RawMax float64
	Scale, Offset  float64
	Deadband       float64

	AlarmLimits AlarmLimits
	AlarmLevel  AlarmLevel // configured baseline, not runtime state

	Writable     bool
	AccessGroup  string
	UpdateRateMS int
	Priority     int

	ConversionFunc ConversionFunc
}

// Validate checks the invariants of spec.md §3.
func (d *VariableDefinition) Validate() error {
	if d.Tag == "" {
		return errs.New(errs.InvalidPolicy, "tag must not be empty")
	}
	if d.Address == "" {
		return errs.New(errs.InvalidAddress, "address must not be empty")
	}
	if d.EngMin >= d.EngMax {
		return errs.New(errs.InvalidPolicy, "eng_min must be < eng_max")
	}
	if d.RawMin >= d.RawMax {
		return errs.New(errs.InvalidPolicy, "raw_min must be < raw_max")
	}
	lim := d.AlarmLimits
	if !(lim.LoLo <= lim.Lo && lim.Lo <= lim.Hi && lim.Hi <= lim.HiHi) {
		return errs.New(errs.InvalidPolicy, "alarm limits must satisfy lolo <= lo <= hi <= hihi")
	}
	if d.Deadband < 0 {
		return errs.New(errs.InvalidPolicy, "deadband must be >= 0")
	}
	if d.Priority < 0 || d.Priority > 100 {
		return errs.New(errs.InvalidPolicy, "priority must be in [0,100]")
	}
	return nil
}

// ApplyScale converts a raw wire value to engineering units using the
// definition's scale/offset, then the optional ConversionFunc.
func (d *VariableDefinition) ApplyScale(raw float64) float64 {
	eng := raw*d.Scale + d.Offset
	if d.ConversionFunc != nil {
		eng = d.ConversionFunc(eng)
	}
	return eng
}
