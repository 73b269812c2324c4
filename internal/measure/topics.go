package measure

import (
	"fmt"

	"cloudpico-sensorbridge/internal/sensor"
)

// Topics builds the upstream topic tree.
type Topics struct {
	Prefix    string
	GatewayID string
}

func (t Topics) Reading(endpoint string, f sensor.Family, channel uint16) string {
	return fmt.Sprintf("%s/%s/%s/%d", t.Prefix, endpoint, f, channel)
}

func (t Topics) Info(endpoint string) string {
	return fmt.Sprintf("%s/%s/info", t.Prefix, endpoint)
}

func (t Topics) Health() string {
	return fmt.Sprintf("%s/gateway/%s/health", t.Prefix, t.GatewayID)
}
