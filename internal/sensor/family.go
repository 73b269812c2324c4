package sensor

import (
	"fmt"
	"strings"
)

// Family is a physical measurement family managed by the measurement store.
type Family uint8

const (
	FamilyTemperature Family = iota
	FamilyBattery
	FamilyCurrent
	FamilyPressure
	FamilyFillLevel
)

// Families lists every family in table order.
var Families = []Family{FamilyTemperature, FamilyBattery, FamilyCurrent, FamilyPressure, FamilyFillLevel}

var familyNames = [...]string{
	FamilyTemperature: "temperature",
	FamilyBattery:     "battery",
	FamilyCurrent:     "current",
	FamilyPressure:    "pressure",
	FamilyFillLevel:   "fill_level",
}

var familyChannels = [...]uint16{
	FamilyTemperature: 4,
	FamilyBattery:     1,
	FamilyCurrent:     4,
	FamilyPressure:    2,
	FamilyFillLevel:   1,
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

// Channels is the number of channel offsets a beacon can expose for the family.
func (f Family) Channels() uint16 {
	if int(f) < len(familyChannels) {
		return familyChannels[f]
	}
	return 0
}

// ParseFamily maps a family name back to its value.
func ParseFamily(s string) (Family, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range familyNames {
		if name == s {
			return Family(i), nil
		}
	}
	return 0, fmt.Errorf("unknown measurement family %q", s)
}

// Capabilities is the set of enabled measurement families.
type Capabilities uint8

// AllCapabilities enables every family.
const AllCapabilities Capabilities = 1<<FamilyTemperature | 1<<FamilyBattery | 1<<FamilyCurrent |
	1<<FamilyPressure | 1<<FamilyFillLevel

// NewCapabilities builds a set from the given families.
func NewCapabilities(families ...Family) Capabilities {
	var c Capabilities
	for _, f := range families {
		c |= 1 << f
	}
	return c
}

// Has reports whether the family is enabled.
func (c Capabilities) Has(f Family) bool {
	return c&(1<<f) != 0
}

// Allows reports whether events of kind k are enabled.
func (c Capabilities) Allows(k Kind) bool {
	f, ok := k.Family()
	return ok && c.Has(f)
}

func (c Capabilities) String() string {
	var names []string
	for _, f := range Families {
		if c.Has(f) {
			names = append(names, f.String())
		}
	}
	return strings.Join(names, ",")
}

// ParseCapabilities parses a comma separated family list. "all" and the empty
// string enable everything.
func ParseCapabilities(s string) (Capabilities, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllCapabilities, nil
	}
	var c Capabilities
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFamily(part)
		if err != nil {
			return 0, err
		}
		c |= 1 << f
	}
	if c == 0 {
		return 0, fmt.Errorf("capabilities %q enable no family", s)
	}
	return c, nil
}
