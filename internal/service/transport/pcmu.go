package transport

import "encoding/binary"

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// encodeMuLaw converts little-endian 16-bit PCM to G.711 mu-law.
func encodeMuLaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out[i] = muLawByte(s)
	}
	return out
}

func muLawByte(s int16) byte {
	v := int32(s)
	var sign byte
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exp := byte(7)
	for mask := int32(0x4000); v&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := byte((v >> (uint(exp) + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}
