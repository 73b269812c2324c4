package measure

import (
	"time"

	"cloudpico-sensorbridge/internal/sensor"
)

// ReadingMessage is published for every accepted measurement.
type ReadingMessage struct {
	GatewayID  string    `json:"gateway_id" cbor:"1,keyasint"`
	Endpoint   string    `json:"endpoint" cbor:"2,keyasint"`
	Address    string    `json:"address" cbor:"3,keyasint"`
	Family     string    `json:"family" cbor:"4,keyasint"`
	Channel    uint16    `json:"channel" cbor:"5,keyasint"`
	Value      float64   `json:"value" cbor:"6,keyasint"`
	Unit       string    `json:"unit" cbor:"7,keyasint"`
	BatteryPct *uint8    `json:"battery_pct,omitempty" cbor:"8,keyasint,omitempty"`
	Timestamp  time.Time `json:"ts" cbor:"9,keyasint"`
}

// InfoMessage is the retained announcement of a beacon's upstream instance.
type InfoMessage struct {
	GatewayID string    `json:"gateway_id" cbor:"1,keyasint"`
	Endpoint  string    `json:"endpoint" cbor:"2,keyasint"`
	Address   string    `json:"address" cbor:"3,keyasint"`
	Index     int       `json:"index" cbor:"4,keyasint"`
	CreatedAt time.Time `json:"created_at" cbor:"5,keyasint"`
}

// HealthMessage is the retained gateway status, also used as the last will.
type HealthMessage struct {
	GatewayID string    `json:"gateway_id" cbor:"1,keyasint"`
	Online    bool      `json:"online" cbor:"2,keyasint"`
	Beacons   int       `json:"beacons" cbor:"3,keyasint"`
	Timestamp time.Time `json:"ts" cbor:"4,keyasint"`
}

// Unit returns the unit of a family's values.
func Unit(f sensor.Family) string {
	switch f {
	case sensor.FamilyTemperature:
		return "Cel"
	case sensor.FamilyBattery:
		return "V"
	case sensor.FamilyCurrent:
		return "A"
	case sensor.FamilyPressure:
		return "psi"
	case sensor.FamilyFillLevel:
		return "cm"
	default:
		return ""
	}
}
