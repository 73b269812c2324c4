package utils

const hexd = "0123456789ABCDEF"

// Hex4 formats a uint16 as a 4-character hexadecimal string (e.g., "0077")
func Hex4(v uint16) string {
	return string([]byte{
		hexd[(v>>12)&0xF],
		hexd[(v>>8)&0xF],
		hexd[(v>>4)&0xF],
		hexd[v&0xF],
	})
}

// BytesToHex converts a byte slice to a hexadecimal string
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}

// MAC formats a 6-byte radio address as "AA:BB:CC:DD:EE:FF".
func MAC(b [6]byte) string {
	out := make([]byte, 0, 17)
	for i, x := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexd[x>>4], hexd[x&0x0F])
	}
	return string(out)
}
