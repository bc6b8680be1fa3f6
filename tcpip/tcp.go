package tcpip

import "encoding/binary"

// TCPHeaderLen is the length of the fixed TCP header.
const TCPHeaderLen = 20

// TCP is a view over a TCP header including its options.
type TCP []byte

// SrcPort returns the source port in host order.
func (t TCP) SrcPort() uint16 { return binary.BigEndian.Uint16(t[0:2]) }

// DstPort returns the destination port in host order.
func (t TCP) DstPort() uint16 { return binary.BigEndian.Uint16(t[2:4]) }

// SeqNum returns the sequence number in host order.
func (t TCP) SeqNum() uint32 { return binary.BigEndian.Uint32(t[4:8]) }

// AckNum returns the acknowledgment number in host order.
func (t TCP) AckNum() uint32 { return binary.BigEndian.Uint32(t[8:12]) }

// DataOffset returns the header length in bytes, options included.
func (t TCP) DataOffset() int { return int(t[12]>>4) * 4 }

// Reserved returns the 4 reserved bits following the data offset.
func (t TCP) Reserved() uint8 { return t[12] & 0x0F }

// Flags returns the TCP flag byte.
func (t TCP) Flags() Flags { return Flags(t[13]) }

// Window returns the window field in host order.
func (t TCP) Window() uint16 { return binary.BigEndian.Uint16(t[14:16]) }

// Checksum returns the TCP checksum.
func (t TCP) Checksum() uint16 { return binary.BigEndian.Uint16(t[16:18]) }

// UrgentPtr returns the urgent pointer in host order.
func (t TCP) UrgentPtr() uint16 { return binary.BigEndian.Uint16(t[18:20]) }

// Base returns a copy of the fixed 20-byte header, used as the context
// snapshot of the last compressed packet.
func (t TCP) Base() (b [20]byte) { copy(b[:], t[:20]); return }

// OptionBytes returns the raw option region.
func (t TCP) OptionBytes() []byte { return t[TCPHeaderLen:t.DataOffset()] }

// Flags is the TCP flag byte with predicate accessors.
type Flags uint8

// FIN reports the FIN flag.
func (f Flags) FIN() bool { return f&0x01 != 0 }

// SYN reports the SYN flag.
func (f Flags) SYN() bool { return f&0x02 != 0 }

// RST reports the RST flag.
func (f Flags) RST() bool { return f&0x04 != 0 }

// PSH reports the PSH flag.
func (f Flags) PSH() bool { return f&0x08 != 0 }

// ACK reports the ACK flag.
func (f Flags) ACK() bool { return f&0x10 != 0 }

// URG reports the URG flag.
func (f Flags) URG() bool { return f&0x20 != 0 }

// ECE reports the ECN-echo flag.
func (f Flags) ECE() bool { return f&0x40 != 0 }

// CWR reports the congestion-window-reduced flag.
func (f Flags) CWR() bool { return f&0x80 != 0 }

// ECN returns the two TCP ECN flags (CWR, ECE) as a 2-bit value.
func (f Flags) ECN() uint8 { return uint8(f>>6) & 0x03 }

// RSF returns the RST, SYN, and FIN bits as a 3-bit value.
func (f Flags) RSF() uint8 { return uint8(f) & 0x07 }

// Option is one parsed TCP option.  Data excludes the kind and length
// octets.  For an end-of-option-list marker, Data holds the padding that
// follows it.
type Option struct {
	Kind uint8
	Data []byte
}

// Kind values handled structurally by the option walker.  The full set of
// well-known kinds lives in the tcpopt package.
const (
	optKindEOL = 0
	optKindNOP = 1
)

// ParseOptions walks the option region in order.
func (t TCP) ParseOptions() ([]Option, error) {
	raw := t.OptionBytes()
	var opts []Option
	for i := 0; i < len(raw); {
		kind := raw[i]
		switch kind {
		case optKindEOL:
			// Everything from here on is padding.
			opts = append(opts, Option{Kind: optKindEOL, Data: raw[i+1:]})
			return opts, nil
		case optKindNOP:
			opts = append(opts, Option{Kind: optKindNOP})
			i++
		default:
			if i+1 >= len(raw) {
				return nil, ErrTruncated
			}
			optLen := int(raw[i+1])
			if optLen < 2 || i+optLen > len(raw) {
				return nil, ErrTruncated
			}
			opts = append(opts, Option{Kind: kind, Data: raw[i+2 : i+optLen]})
			i += optLen
		}
	}
	return opts, nil
}
