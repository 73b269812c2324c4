// Package sensor defines the sensor event vocabulary shared by the advertisement
// parser, the reconciliation engine and the measurement store.
package sensor

import "fmt"

// Kind is the record type carried by a sensor event advertisement.
type Kind uint8

// Record types as broadcast by BT510 / BT6xx beacons.
const (
	KindNone               Kind = 0
	KindTemperature        Kind = 1
	KindMagnet             Kind = 2
	KindMovement           Kind = 3
	KindAlarmHighTemp1     Kind = 4
	KindAlarmHighTemp2     Kind = 5
	KindAlarmHighTempClear Kind = 6
	KindAlarmLowTemp1      Kind = 7
	KindAlarmLowTemp2      Kind = 8
	KindAlarmLowTempClear  Kind = 9
	KindAlarmDeltaTemp     Kind = 10
	KindAlarmTempRate      Kind = 11
	KindBatteryGood        Kind = 12
	KindAdvOnButton        Kind = 13
	KindImpact             Kind = 15
	KindBatteryBad         Kind = 16
	KindReset              Kind = 17
	KindTemperature1       Kind = 18
	KindTemperature2       Kind = 19
	KindTemperature3       Kind = 20
	KindTemperature4       Kind = 21
	KindCurrent1           Kind = 22
	KindCurrent2           Kind = 23
	KindCurrent3           Kind = 24
	KindCurrent4           Kind = 25
	KindPressure1          Kind = 26
	KindPressure2          Kind = 27
	KindUltrasonic1        Kind = 28
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindTemperature:        "temperature",
	KindMagnet:             "magnet",
	KindMovement:           "movement",
	KindAlarmHighTemp1:     "alarm_high_temp_1",
	KindAlarmHighTemp2:     "alarm_high_temp_2",
	KindAlarmHighTempClear: "alarm_high_temp_clear",
	KindAlarmLowTemp1:      "alarm_low_temp_1",
	KindAlarmLowTemp2:      "alarm_low_temp_2",
	KindAlarmLowTempClear:  "alarm_low_temp_clear",
	KindAlarmDeltaTemp:     "alarm_delta_temp",
	KindAlarmTempRate:      "alarm_temp_rate_of_change",
	KindBatteryGood:        "battery_good",
	KindAdvOnButton:        "advertise_on_button",
	KindImpact:             "impact",
	KindBatteryBad:         "battery_bad",
	KindReset:              "reset",
	KindTemperature1:       "temperature_1",
	KindTemperature2:       "temperature_2",
	KindTemperature3:       "temperature_3",
	KindTemperature4:       "temperature_4",
	KindCurrent1:           "current_1",
	KindCurrent2:           "current_2",
	KindCurrent3:           "current_3",
	KindCurrent4:           "current_4",
	KindPressure1:          "pressure_1",
	KindPressure2:          "pressure_2",
	KindUltrasonic1:        "ultrasonic_1",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Family returns the measurement family a record type feeds, and false for
// record types that carry no supported measurement.
func (k Kind) Family() (Family, bool) {
	switch k {
	case KindTemperature, KindTemperature1, KindTemperature2, KindTemperature3, KindTemperature4:
		return FamilyTemperature, true
	case KindBatteryGood, KindBatteryBad:
		return FamilyBattery, true
	case KindCurrent1, KindCurrent2, KindCurrent3, KindCurrent4:
		return FamilyCurrent, true
	case KindPressure1, KindPressure2:
		return FamilyPressure, true
	case KindUltrasonic1:
		return FamilyFillLevel, true
	default:
		return 0, false
	}
}

// Offset returns the channel offset of a multi-channel record type. Single
// channel record types use offset 0.
func (k Kind) Offset() uint16 {
	switch {
	case k >= KindTemperature1 && k <= KindTemperature4:
		return uint16(k - KindTemperature1)
	case k >= KindCurrent1 && k <= KindCurrent4:
		return uint16(k - KindCurrent1)
	case k >= KindPressure1 && k <= KindPressure2:
		return uint16(k - KindPressure1)
	default:
		return 0
	}
}
