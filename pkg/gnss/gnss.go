// Package gnss contains common constants and type definitions.
package gnss

import (
	"fmt"
	"strings"
)

// System is a satellite system.
type System int

// Available satellite systems.
const (
	SysGPS System = iota + 1
	SysGLO
	SysGAL
	SysQZSS
	SysBDS
	SysIRNSS
	SysSBAS
	SysMIXED
)

func (sys System) String() string {
	return [...]string{"", "GPS", "GLO", "GAL", "QZSS", "BDS", "IRNSS", "SBAS", "MIXED"}[sys]
}

// Abbr returns the systems' one-character abbreviation used in RINEX.
func (sys System) Abbr() string {
	return [...]string{"", "G", "R", "E", "J", "C", "I", "S", "M"}[sys]
}

var sysPerAbbr = map[string]System{
	"G": SysGPS,
	"R": SysGLO,
	"E": SysGAL,
	"J": SysQZSS,
	"C": SysBDS,
	"I": SysIRNSS,
	"S": SysSBAS,
	"M": SysMIXED,
}

// ParseSystem returns the satellite system for the given RINEX abbreviation.
// Decoders should use it to fail fast on an unknown constellation code instead
// of producing wrong-width records.
func ParseSystem(abbr string) (System, error) {
	if sys, ok := sysPerAbbr[abbr]; ok {
		return sys, nil
	}
	return 0, fmt.Errorf("gnss: invalid satellite system: %q", abbr)
}

// MarshalJSON encodes the system as its RINEX abbreviation.
func (sys System) MarshalJSON() ([]byte, error) {
	return []byte(`"` + sys.Abbr() + `"`), nil
}

// UnmarshalJSON decodes a system from its RINEX abbreviation.
func (sys *System) UnmarshalJSON(data []byte) error {
	s, err := ParseSystem(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*sys = s
	return nil
}

// Systems specifies a list of satellite systems.
type Systems []System

// String returns the contained systems in sitelog manner GPS+GLO+...
func (syss Systems) String() string {
	str := make([]string, 0, len(syss))
	for _, sys := range syss {
		str = append(str, sys.String())
	}
	return strings.Join(str, "+")
}
