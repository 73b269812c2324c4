package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cloudpico-sensorbridge/internal/sensor"
)

// Policy is the optional YAML admission policy.
//
//	capabilities: [temperature, battery]
//	blocked:
//	  - "AA:BB:CC:DD:EE:FF"
//	names:
//	  "AA:BB:CC:DD:EE:01": tank-north
type Policy struct {
	Capabilities sensor.Capabilities
	Blocked      []string
	Names        map[string]string
}

type policyFile struct {
	Capabilities []string          `yaml:"capabilities"`
	Blocked      []string          `yaml:"blocked"`
	Names        map[string]string `yaml:"names"`
}

func LoadPolicy(path string) (Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read POLICY_FILE %q: %w", path, err)
	}
	p, err := ParsePolicy(b)
	if err != nil {
		return Policy{}, fmt.Errorf("POLICY_FILE %q: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes and validates a policy document. Addresses are
// normalized to upper case.
func ParsePolicy(b []byte) (Policy, error) {
	var raw policyFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}

	var p Policy
	if len(raw.Capabilities) > 0 {
		caps, err := sensor.ParseCapabilities(strings.Join(raw.Capabilities, ","))
		if err != nil {
			return Policy{}, fmt.Errorf("capabilities: %w", err)
		}
		p.Capabilities = caps
	}

	for _, addr := range raw.Blocked {
		norm, err := NormalizeAddress(addr)
		if err != nil {
			return Policy{}, fmt.Errorf("blocked: %w", err)
		}
		p.Blocked = append(p.Blocked, norm)
	}

	if len(raw.Names) > 0 {
		p.Names = make(map[string]string, len(raw.Names))
	}
	for addr, name := range raw.Names {
		norm, err := NormalizeAddress(addr)
		if err != nil {
			return Policy{}, fmt.Errorf("names: %w", err)
		}
		name = strings.TrimSpace(name)
		if err := ValidateEndpointName(name); err != nil {
			return Policy{}, fmt.Errorf("names: %s: %w", norm, err)
		}
		p.Names[norm] = name
	}
	return p, nil
}

// NormalizeAddress parses a 48-bit address and returns it in upper-case
// colon form.
func NormalizeAddress(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return strings.ToUpper(hw.String()), nil
}

// ValidateEndpointName rejects names that cannot be used as a single MQTT
// topic level.
func ValidateEndpointName(name string) error {
	if name == "" || strings.ContainsAny(name, "/+#") {
		return fmt.Errorf("invalid endpoint name %q", name)
	}
	return nil
}
