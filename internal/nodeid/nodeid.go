// Package nodeid parses the textual OPC UA node-id shorthand used in
// VariableDefinition addresses into gopcua's binary *ua.NodeID, and
// formats one back for diagnostics.
//
// Grammar:
//
//	node-id  := [ "ns=" uint ";" ] ( id-str | id-num | id-guid | id-bytes )
//	id-str   := "s=" utf8
//	id-num   := "i=" uint
//	id-guid  := "g=" hex-guid
//	id-bytes := "b=" base64
//
// If none of the id-prefixes is present, the entire input is treated as
// a string identifier with the default namespace 2 (a common industrial
// shorthand for bare tag names).
package nodeid

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/errs"
)

// DefaultNamespace is used when an address carries no "ns=" prefix and
// no id-prefix either (the bare-string shorthand).
const DefaultNamespace = 2

// Parse converts a textual node-id address into gopcua's binary form.
// Empty input fails with errs.InvalidAddress.
func Parse(address string) (*ua.NodeID, error) {
	if address == "" {
		return nil, errs.New(errs.InvalidAddress, "empty address")
	}

	rest := address
	ns := uint64(0)
	hasNS := false
	if strings.HasPrefix(rest, "ns=") {
		semi := strings.IndexByte(rest, ';')
		if semi < 0 {
			return nil, errs.New(errs.InvalidAddress, "missing ';' after ns=")
		}
		n, err := strconv.ParseUint(rest[3:semi], 10, 16)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidAddress, "invalid namespace index", err)
		}
		ns = n
		hasNS = true
		rest = rest[semi+1:]
	}

	switch {
	case strings.HasPrefix(rest, "s="):
		return ua.NewStringNodeID(uint16(ns), rest[2:]), nil
	case strings.HasPrefix(rest, "i="):
		n, err := strconv.ParseUint(rest[2:], 10, 32)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidAddress, "invalid numeric identifier", err)
		}
		return ua.NewNumericNodeID(uint16(ns), uint32(n)), nil
	case strings.HasPrefix(rest, "g="):
		return ua.NewGUIDNodeID(uint16(ns), rest[2:]), nil
	case strings.HasPrefix(rest, "b="):
		data, err := base64.StdEncoding.DecodeString(rest[2:])
		if err != nil {
			return nil, errs.Wrap(errs.InvalidAddress, "invalid base64 byte-string identifier", err)
		}
		return ua.NewByteStringNodeID(uint16(ns), data), nil
	default:
		// Bare shorthand: the whole remainder is a string identifier.
		// Default to namespace 2 unless an explicit "ns=" was given
		// with no recognized id-prefix (still a string identifier).
		if !hasNS {
			ns = DefaultNamespace
		}
		return ua.NewStringNodeID(uint16(ns), rest), nil
	}
}

// Format renders a *ua.NodeID back to its textual shorthand. It is the
// round-trip inverse of Parse modulo default-namespace insertion: an
// address with no "ns=" prefix that fell into the bare-string case will
// format with an explicit "ns=2;s=..." prefix.
func Format(id *ua.NodeID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
