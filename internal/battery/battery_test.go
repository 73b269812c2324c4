package battery

import "testing"

func TestLevelBT510(t *testing.T) {
	tests := []struct {
		volts float64
		want  uint8
	}{
		{3.3, 100},
		{3.0, 100},
		{2.95, 90},
		{2.8, 60},
		{2.45, 5},
		{2.4, 0},
		{0, 0},
	}
	for _, tt := range tests {
		if got := LevelBT510(tt.volts); got != tt.want {
			t.Errorf("LevelBT510(%v) = %d, want %d", tt.volts, got, tt.want)
		}
	}
}

func TestLevelBT610(t *testing.T) {
	tests := []struct {
		volts float64
		want  uint8
	}{
		{3.7, 100},
		{3.6, 100},
		{3.45, 50},
		{3.2, 5},
		{2.9, 0},
	}
	for _, tt := range tests {
		if got := LevelBT610(tt.volts); got != tt.want {
			t.Errorf("LevelBT610(%v) = %d, want %d", tt.volts, got, tt.want)
		}
	}
}

func TestLevelMonotonic(t *testing.T) {
	prev := uint8(0)
	for mv := 2000; mv <= 3800; mv += 10 {
		got := LevelBT610(float64(mv) / 1000)
		if got < prev {
			t.Fatalf("LevelBT610 decreased at %d mV: %d < %d", mv, got, prev)
		}
		prev = got
	}
}
