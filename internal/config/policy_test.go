package config

import (
	"testing"

	"cloudpico-sensorbridge/internal/sensor"
)

func TestParsePolicy(t *testing.T) {
	doc := []byte(`
capabilities:
  - temperature
  - current
blocked:
  - "aa:aa:aa:aa:aa:02"
names:
  "aa:aa:aa:aa:aa:01": tank-north
`)
	p, err := ParsePolicy(doc)
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}
	if want := sensor.NewCapabilities(sensor.FamilyTemperature, sensor.FamilyCurrent); p.Capabilities != want {
		t.Errorf("Capabilities = %v, want %v", p.Capabilities, want)
	}
	if len(p.Blocked) != 1 || p.Blocked[0] != "AA:AA:AA:AA:AA:02" {
		t.Errorf("Blocked = %v", p.Blocked)
	}
	if p.Names["AA:AA:AA:AA:AA:01"] != "tank-north" {
		t.Errorf("Names = %v", p.Names)
	}
}

func TestParsePolicy_Empty(t *testing.T) {
	p, err := ParsePolicy(nil)
	if err != nil {
		t.Fatalf("ParsePolicy(nil) error = %v", err)
	}
	if p.Capabilities != 0 || len(p.Blocked) != 0 || len(p.Names) != 0 {
		t.Errorf("ParsePolicy(nil) = %+v, want zero policy", p)
	}
}

func TestParsePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: "allow: [x]\n"},
		{name: "unknown capability", doc: "capabilities: [humidity]\n"},
		{name: "bad blocked address", doc: "blocked: [not-a-mac]\n"},
		{name: "bad name address", doc: "names:\n  nope: tank\n"},
		{name: "topic wildcard in name", doc: "names:\n  \"AA:AA:AA:AA:AA:01\": \"tank/#\"\n"},
		{name: "not yaml", doc: "capabilities: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(tt.doc)); err == nil {
				t.Fatal("ParsePolicy() error = nil, want non-nil")
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress(" aa:bb:cc:dd:ee:0f ")
	if err != nil {
		t.Fatalf("NormalizeAddress: %v", err)
	}
	if got != "AA:BB:CC:DD:EE:0F" {
		t.Fatalf("got %q", got)
	}
	if _, err := NormalizeAddress("aa:bb:cc:dd:ee:ff:00:11"); err == nil {
		t.Fatal("expected error for 64-bit address")
	}
}

func TestValidateEndpointName(t *testing.T) {
	for _, name := range []string{"", "a/b", "tank+1", "#"} {
		if err := ValidateEndpointName(name); err == nil {
			t.Errorf("ValidateEndpointName(%q) = nil, want error", name)
		}
	}
	if err := ValidateEndpointName("tank-3"); err != nil {
		t.Errorf("ValidateEndpointName(tank-3) = %v", err)
	}
}
