package ble

import (
	"encoding/binary"
	"math"

	"cloudpico-sensorbridge/internal/sensor"
)

// Sensor advertisement format: little-endian manufacturer data under company
// id 0x0077. After the company id comes protocol_id (u16) and then
//
//	primary:  event
//	combined: event, response
//	response: response
//
//	event (22 bytes):    network_id u16, flags u16, addr [6]u8, record_type u8,
//	                     id u16, epoch u32, data [4]u8, reset_count u8
//	response (10 bytes): product_id u16, fw major/minor/patch u8, fw_type u8,
//	                     config_version u8, bootloader major/minor/patch u8
const (
	CompanyID = 0x0077

	ProtocolPrimary  = 0x0001
	ProtocolCombined = 0x0002
	ProtocolResponse = 0x0003

	protocolLen = 2
	eventLen    = 22
	responseLen = 10

	primaryLen    = protocolLen + eventLen
	combinedLen   = protocolLen + eventLen + responseLen
	responseAdLen = protocolLen + responseLen
)

// Variant is the advertisement shape. Only one variant matches a packet.
type Variant uint8

const (
	VariantUnrecognized Variant = iota
	VariantPrimary
	VariantCombined
	VariantResponse
)

func (v Variant) String() string {
	switch v {
	case VariantPrimary:
		return "primary"
	case VariantCombined:
		return "combined"
	case VariantResponse:
		return "response"
	default:
		return "unrecognized"
	}
}

// Event is the measurement event embedded in primary and combined ads.
type Event struct {
	NetworkID  uint16
	Flags      uint16
	Addr       [6]byte
	Kind       sensor.Kind
	ID         uint16
	Epoch      uint32
	Data       [4]byte
	ResetCount uint8
}

// U16 returns the low 16 bits of the payload.
func (e Event) U16() uint16 { return binary.LittleEndian.Uint16(e.Data[:2]) }

// S16 returns the payload as a signed 16-bit value.
func (e Event) S16() int16 { return int16(e.U16()) }

// S32 returns the payload as a signed 32-bit value.
func (e Event) S32() int32 { return int32(binary.LittleEndian.Uint32(e.Data[:])) }

// F32 returns the payload as an IEEE-754 float.
func (e Event) F32() float32 { return math.Float32frombits(binary.LittleEndian.Uint32(e.Data[:])) }

// Response is the identity carried by scan responses.
type Response struct {
	Product       sensor.Product
	FwMajor       uint8
	FwMinor       uint8
	FwPatch       uint8
	FwType        uint8
	ConfigVersion uint8
	BlMajor       uint8
	BlMinor       uint8
	BlPatch       uint8
}

// Advertisement is a classified packet.
type Advertisement struct {
	Variant  Variant
	Event    Event
	Response Response
	// Name is the discoverable local name, if the packet carried one.
	Name []byte
}

// Parse classifies a packet. Checks run most-frequent first.
func Parse(p Packet) Advertisement {
	adv := Advertisement{Variant: VariantUnrecognized}
	if p.CompanyID != CompanyID || len(p.Data) < protocolLen {
		return adv
	}
	if p.LocalName != "" {
		adv.Name = []byte(p.LocalName)
	}

	data := p.Data
	switch binary.LittleEndian.Uint16(data[0:2]) {
	case ProtocolPrimary:
		if len(data) < primaryLen {
			return adv
		}
		adv.Event = decodeEvent(data[protocolLen:])
		adv.Variant = VariantPrimary
	case ProtocolCombined:
		if len(data) < combinedLen {
			return adv
		}
		adv.Event = decodeEvent(data[protocolLen:])
		adv.Response = decodeResponse(data[protocolLen+eventLen:])
		adv.Variant = VariantCombined
	case ProtocolResponse:
		if len(data) < responseAdLen {
			return adv
		}
		adv.Response = decodeResponse(data[protocolLen:])
		adv.Variant = VariantResponse
	}
	return adv
}

func decodeEvent(b []byte) Event {
	var e Event
	e.NetworkID = binary.LittleEndian.Uint16(b[0:2])
	e.Flags = binary.LittleEndian.Uint16(b[2:4])
	copy(e.Addr[:], b[4:10])
	e.Kind = sensor.Kind(b[10])
	e.ID = binary.LittleEndian.Uint16(b[11:13])
	e.Epoch = binary.LittleEndian.Uint32(b[13:17])
	copy(e.Data[:], b[17:21])
	e.ResetCount = b[21]
	return e
}

func decodeResponse(b []byte) Response {
	return Response{
		Product:       sensor.Product(binary.LittleEndian.Uint16(b[0:2])),
		FwMajor:       b[2],
		FwMinor:       b[3],
		FwPatch:       b[4],
		FwType:        b[5],
		ConfigVersion: b[6],
		BlMajor:       b[7],
		BlMinor:       b[8],
		BlPatch:       b[9],
	}
}
