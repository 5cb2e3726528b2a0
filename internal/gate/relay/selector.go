package relay

import "github.com/pdkslab/pdksgate/internal/gate/types"

// Selector picks the dialect for one response. Precedence: binary requests
// always get the binary dialect, then a per-serial override from config,
// then the dialect stored on the device record, then Default. The binary
// dialect is only ever chosen for binary requests; a text reader configured
// for it falls through to the next candidate.
type Selector struct {
	Default   Dialect
	Overrides map[string]Dialect
}

func (s Selector) Select(dev *types.Device, serial string, binary bool) Dialect {
	if binary {
		return DialectProto
	}
	if d, ok := s.Overrides[serial]; ok && d != DialectProto {
		return d
	}
	if dev != nil && dev.Dialect != "" {
		if d, err := ParseDialect(dev.Dialect); err == nil && d != DialectProto {
			return d
		}
	}
	if s.Default == "" || s.Default == DialectProto {
		return DialectRelay
	}
	return s.Default
}
