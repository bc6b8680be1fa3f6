// Package lsb implements the field encodings shared by the ROHC TCP
// compressed formats: least-significant-bits windows, the self-describing
// variable-length 32-bit encoding, the TCP timestamp and SACK field
// encodings, and scaled sequence/ack arithmetic.
//
// All values passed in and out are host-order integers.  The Append*
// functions write network byte order and return the extended slice, in the
// style of the standard library append.
package lsb

import "encoding/binary"

// Fits32 reports whether transmitting the k low bits of v is decodable
// against the reference ref, i.e. whether v falls in the interpretation
// interval [ref-p, ref+2^k-1-p] modulo 2^32.
func Fits32(v, ref uint32, k uint, p int32) bool {
	if k >= 32 {
		return true
	}
	delta := v - (ref - uint32(p))
	return delta < uint32(1)<<k
}

// Fits16 is Fits32 for 16-bit quantities, modulo 2^16.
func Fits16(v, ref uint16, k uint, p int16) bool {
	if k >= 16 {
		return true
	}
	delta := v - (ref - uint16(p))
	return delta < uint16(1)<<k
}

// Swap16 swaps the two bytes of v.  Sequential-swapped IP-ID arithmetic is
// performed on byte-swapped values.
func Swap16(v uint16) uint16 {
	return v<<8 | v>>8
}

// AppendUint16 appends v in network byte order.
func AppendUint16(dst []byte, v uint16) []byte {
	return append(dst, byte(v>>8), byte(v))
}

// AppendUint32 appends v in network byte order.
func AppendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Uint16 reads a network-order 16-bit value.
func Uint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// Uint32 reads a network-order 32-bit value.
func Uint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Variable-length 32-bit indicators, in ascending length order.
const (
	VarLenNone = 0 // value identical to the reference, nothing sent
	VarLen8    = 1 // 8 low bits sent
	VarLen16   = 2 // 16 low bits sent
	VarLenFull = 3 // all 32 bits sent

	varLen8P  = 63
	varLen16P = 16383
)

// AppendVarLen32 appends the variable_length_32 encoding of v against ref
// and returns the 2-bit indicator for the caller to pack into its flags.
func AppendVarLen32(dst []byte, v, ref uint32) ([]byte, uint8) {
	switch {
	case v == ref:
		return dst, VarLenNone
	case Fits32(v, ref, 8, varLen8P):
		return append(dst, byte(v)), VarLen8
	case Fits32(v, ref, 16, varLen16P):
		return AppendUint16(dst, uint16(v)), VarLen16
	default:
		return AppendUint32(dst, v), VarLenFull
	}
}

// AppendTS appends the TCP timestamp LSB encoding of ts against ref.  The
// four forms are discriminated in the first byte: '0' + 7 bits, '10' + 14
// bits, '110' + 21 bits, '111' + 29 bits.  When even the 29-bit window does
// not cover the delta the full low 29 bits are sent anyway using the '111'
// form; ok is false so the caller can log the reference slip.
func AppendTS(dst []byte, ts, ref uint32) ([]byte, bool) {
	switch {
	case ts>>7 == ref>>7:
		return append(dst, byte(ts&0x7F)), true
	case ts>>14 == ref>>14:
		return append(dst, 0x80|byte(ts>>8&0x3F), byte(ts)), true
	case ts>>21 == ref>>21:
		return append(dst, 0xC0|byte(ts>>16&0x1F), byte(ts>>8), byte(ts)), true
	default:
		dst = append(dst, 0xE0|byte(ts>>24&0x1F), byte(ts>>16), byte(ts>>8), byte(ts))
		return dst, ts>>29 == ref>>29
	}
}

// AppendSACKField appends one SACK edge encoded relative to base.  The three
// forms are '0' + 15 bits, '10' + 22 bits, and '11' + 30 bits of the
// difference.  ok is false when the difference exceeds 30 bits, in which
// case nothing is appended and the caller must fall back to sending the
// option in full.
func AppendSACKField(dst []byte, v, base uint32) ([]byte, bool) {
	delta := v - base
	switch {
	case delta < 1<<15:
		return append(dst, byte(delta>>8), byte(delta)), true
	case delta < 1<<22:
		return append(dst, 0x80|byte(delta>>16&0x3F), byte(delta>>8), byte(delta)), true
	case delta < 1<<30:
		return append(dst, 0xC0|byte(delta>>24&0x3F), byte(delta>>16), byte(delta>>8), byte(delta)), true
	default:
		return dst, false
	}
}

// Append7or31 appends the one-bit-discriminated sequence number encoding
// used by the GRE and AH irregular parts: '0' + 7 LSBs when they cover the
// delta against ref, otherwise '1' + 31 LSBs.
func Append7or31(dst []byte, v, ref uint32) []byte {
	if Fits32(v, ref, 7, 63) {
		return append(dst, byte(v&0x7F))
	}
	return AppendUint32(dst, 1<<31|v&0x7FFFFFFF)
}

// Scale splits v by a non-zero scaling factor into the scaled value and the
// residue cached in the flow context.
func Scale(v, factor uint32) (scaled, residue uint32) {
	return v / factor, v % factor
}
