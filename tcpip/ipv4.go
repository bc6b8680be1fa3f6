package tcpip

import "encoding/binary"

// IPv4HeaderLen is the only IPv4 header length the profile accepts
// (IHL = 5, no options).
const IPv4HeaderLen = 20

// IPv4 is a view over a 20-byte IPv4 header.
type IPv4 []byte

// Version returns the IP version nibble.
func (h IPv4) Version() uint8 { return h[0] >> 4 }

// HeaderLen returns the header length in bytes.
func (h IPv4) HeaderLen() int { return int(h[0]&0x0F) * 4 }

// DSCP returns the 6-bit differentiated services code point.
func (h IPv4) DSCP() uint8 { return h[1] >> 2 }

// ECN returns the 2-bit ECN field.
func (h IPv4) ECN() uint8 { return h[1] & 0x03 }

// TotalLen returns the datagram length including the header.
func (h IPv4) TotalLen() uint16 { return binary.BigEndian.Uint16(h[2:4]) }

// ID returns the identification field in host order.
func (h IPv4) ID() uint16 { return binary.BigEndian.Uint16(h[4:6]) }

// RF reports the reserved flag bit.
func (h IPv4) RF() bool { return h[6]&0x80 != 0 }

// DF reports the don't-fragment bit.
func (h IPv4) DF() bool { return h[6]&0x40 != 0 }

// MF reports the more-fragments bit.
func (h IPv4) MF() bool { return h[6]&0x20 != 0 }

// FragmentOffset returns the fragment offset in 8-byte units.
func (h IPv4) FragmentOffset() uint16 {
	return binary.BigEndian.Uint16(h[6:8]) & 0x1FFF
}

// TTL returns the time-to-live.
func (h IPv4) TTL() uint8 { return h[8] }

// Protocol returns the payload protocol number.
func (h IPv4) Protocol() uint8 { return h[9] }

// Checksum returns the header checksum.
func (h IPv4) Checksum() uint16 { return binary.BigEndian.Uint16(h[10:12]) }

// SrcAddr returns the source address bytes.
func (h IPv4) SrcAddr() (a [4]byte) { copy(a[:], h[12:16]); return }

// DstAddr returns the destination address bytes.
func (h IPv4) DstAddr() (a [4]byte) { copy(a[:], h[16:20]); return }
