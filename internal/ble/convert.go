package ble

import (
	"fmt"

	"cloudpico-sensorbridge/internal/battery"
	"cloudpico-sensorbridge/internal/registry"
	"cloudpico-sensorbridge/internal/sensor"
)

// Convert maps an admitted event to the measurement written for beacon idx.
// product selects the battery curve; unknown products report 0 V / 0 %.
func Convert(idx int, e Event, product sensor.Product) (sensor.Measurement, error) {
	family, ok := e.Kind.Family()
	if !ok {
		return sensor.Measurement{}, fmt.Errorf("%w: %v", registry.ErrUnsupportedKind, e.Kind)
	}
	m := sensor.Measurement{
		Family: family,
		Index:  idx,
		Offset: e.Kind.Offset(),
	}

	switch e.Kind {
	case sensor.KindTemperature:
		m.Value = float64(e.S16()) / 100.0

	case sensor.KindTemperature1, sensor.KindTemperature2, sensor.KindTemperature3, sensor.KindTemperature4,
		sensor.KindCurrent1, sensor.KindCurrent2, sensor.KindCurrent3, sensor.KindCurrent4,
		sensor.KindPressure1, sensor.KindPressure2:
		m.Value = float64(e.F32())

	case sensor.KindBatteryGood, sensor.KindBatteryBad:
		switch product {
		case sensor.ProductBT510:
			m.Value = float64(uint32(e.U16())) / 1000.0
			m.Percentage = battery.LevelBT510(m.Value)
		case sensor.ProductBT6XX:
			m.Value = float64(e.S32()) / 1000.0
			m.Percentage = battery.LevelBT610(m.Value)
		default:
			m.Value = 0
			m.Percentage = 0
		}

	case sensor.KindUltrasonic1:
		// reported in mm, stored in cm
		m.Value = float64(e.F32()) / 10.0

	default:
		return sensor.Measurement{}, fmt.Errorf("%w: %v", registry.ErrUnsupportedKind, e.Kind)
	}
	return m, nil
}
