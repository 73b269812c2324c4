package ble

import (
	"encoding/binary"
	"math"

	"cloudpico-sensorbridge/internal/sensor"
)

// EncodePrimary builds the manufacturer data (after the company id) of a
// primary event advertisement.
func EncodePrimary(e Event) []byte {
	b := make([]byte, primaryLen)
	binary.LittleEndian.PutUint16(b[0:2], ProtocolPrimary)
	encodeEvent(b[protocolLen:], e)
	return b
}

// EncodeCombined builds a combined advertisement carrying both an event and a
// scan response.
func EncodeCombined(e Event, r Response) []byte {
	b := make([]byte, combinedLen)
	binary.LittleEndian.PutUint16(b[0:2], ProtocolCombined)
	encodeEvent(b[protocolLen:], e)
	encodeResponse(b[protocolLen+eventLen:], r)
	return b
}

// EncodeResponse builds a response-only advertisement.
func EncodeResponse(r Response) []byte {
	b := make([]byte, responseAdLen)
	binary.LittleEndian.PutUint16(b[0:2], ProtocolResponse)
	encodeResponse(b[protocolLen:], r)
	return b
}

func encodeEvent(b []byte, e Event) {
	binary.LittleEndian.PutUint16(b[0:2], e.NetworkID)
	binary.LittleEndian.PutUint16(b[2:4], e.Flags)
	copy(b[4:10], e.Addr[:])
	b[10] = byte(e.Kind)
	binary.LittleEndian.PutUint16(b[11:13], e.ID)
	binary.LittleEndian.PutUint32(b[13:17], e.Epoch)
	copy(b[17:21], e.Data[:])
	b[21] = e.ResetCount
}

func encodeResponse(b []byte, r Response) {
	binary.LittleEndian.PutUint16(b[0:2], uint16(r.Product))
	b[2] = r.FwMajor
	b[3] = r.FwMinor
	b[4] = r.FwPatch
	b[5] = r.FwType
	b[6] = r.ConfigVersion
	b[7] = r.BlMajor
	b[8] = r.BlMinor
	b[9] = r.BlPatch
}

// NewEvent returns an event of the given kind with an empty payload.
func NewEvent(kind sensor.Kind, id uint16) Event {
	return Event{Kind: kind, ID: id}
}

// WithU16 stores a 16-bit payload.
func (e Event) WithU16(v uint16) Event {
	e.Data = [4]byte{}
	binary.LittleEndian.PutUint16(e.Data[:2], v)
	return e
}

// WithS16 stores a signed 16-bit payload.
func (e Event) WithS16(v int16) Event { return e.WithU16(uint16(v)) }

// WithS32 stores a signed 32-bit payload.
func (e Event) WithS32(v int32) Event {
	binary.LittleEndian.PutUint32(e.Data[:], uint32(v))
	return e
}

// WithF32 stores a float payload.
func (e Event) WithF32(v float32) Event {
	binary.LittleEndian.PutUint32(e.Data[:], math.Float32bits(v))
	return e
}
