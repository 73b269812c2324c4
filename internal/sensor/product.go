package sensor

import "fmt"

// Product is the hardware family declared in a scan response.
type Product uint16

const (
	ProductBT510   Product = 0x0001
	ProductBT6XX   Product = 0x0002
	ProductUnknown Product = 0xFFFF
)

func (p Product) String() string {
	switch p {
	case ProductBT510:
		return "BT510"
	case ProductBT6XX:
		return "BT6XX"
	case ProductUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("product(0x%04X)", uint16(p))
	}
}

// Measurement is a converted reading addressed to one beacon channel.
type Measurement struct {
	Family     Family
	Index      int
	Offset     uint16
	Value      float64
	Percentage uint8
}
