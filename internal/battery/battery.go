// Package battery converts beacon supply voltages to a remaining-capacity
// percentage using per-product discharge curves.
package battery

type point struct {
	volts   float64
	percent float64
}

// Curves are ordered by descending voltage.
var bt510Curve = []point{
	{3.00, 100},
	{2.90, 80},
	{2.80, 60},
	{2.70, 40},
	{2.60, 20},
	{2.50, 10},
	{2.40, 0},
}

// Li-SOCl2 cells hold a flat plateau then drop sharply.
var bt610Curve = []point{
	{3.60, 100},
	{3.55, 90},
	{3.50, 75},
	{3.45, 50},
	{3.40, 30},
	{3.30, 15},
	{3.20, 5},
	{3.00, 0},
}

// LevelBT510 returns the battery percentage of a BT510.
func LevelBT510(volts float64) uint8 {
	return level(bt510Curve, volts)
}

// LevelBT610 returns the battery percentage of a BT6xx.
func LevelBT610(volts float64) uint8 {
	return level(bt610Curve, volts)
}

func level(curve []point, volts float64) uint8 {
	if volts >= curve[0].volts {
		return uint8(curve[0].percent)
	}
	last := curve[len(curve)-1]
	if volts <= last.volts {
		return uint8(last.percent)
	}
	for i := 1; i < len(curve); i++ {
		hi, lo := curve[i-1], curve[i]
		if volts >= lo.volts {
			frac := (volts - lo.volts) / (hi.volts - lo.volts)
			return uint8(lo.percent + frac*(hi.percent-lo.percent) + 0.5)
		}
	}
	return 0
}
