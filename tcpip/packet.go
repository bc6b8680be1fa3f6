package tcpip

import "encoding/binary"

// IPHeader is one parsed IP header in a packet's stack, outermost first.
// Raw is the fixed header only; Exts holds the IPv6 extension headers that
// follow it, in wire order.
type IPHeader struct {
	Version uint8
	Raw     []byte
	Exts    []Extension
}

// V4 returns the IPv4 view of the header.
func (h *IPHeader) V4() IPv4 { return IPv4(h.Raw) }

// V6 returns the IPv6 view of the header.
func (h *IPHeader) V6() IPv6 { return IPv6(h.Raw) }

// TTL returns the TTL or hop limit.
func (h *IPHeader) TTL() uint8 {
	if h.Version == 4 {
		return h.V4().TTL()
	}
	return h.V6().HopLimit()
}

// DSCP returns the differentiated services code point.
func (h *IPHeader) DSCP() uint8 {
	if h.Version == 4 {
		return h.V4().DSCP()
	}
	return h.V6().DSCP()
}

// ECN returns the 2-bit IP ECN field.
func (h *IPHeader) ECN() uint8 {
	if h.Version == 4 {
		return h.V4().ECN()
	}
	return h.V6().ECN()
}

// Packet is a validated TCP/IP packet with its IP header stack resolved.
type Packet struct {
	Data []byte
	// IP holds the header stack in outer-to-inner order.
	IP  []IPHeader
	TCP TCP
	// PayloadOffset is the offset of the TCP payload into Data.
	PayloadOffset int
}

// Innermost returns the IP header closest to the TCP header.
func (p *Packet) Innermost() *IPHeader { return &p.IP[len(p.IP)-1] }

// Payload returns the TCP payload bytes.
func (p *Packet) Payload() []byte { return p.Data[p.PayloadOffset:] }

// PayloadLen returns the TCP payload length.
func (p *Packet) PayloadLen() int { return len(p.Data) - p.PayloadOffset }

// Parse walks data from the outer IP header down to the TCP payload,
// validating the structural constraints of the TCP profile: IPv4 headers
// must be option-free and unfragmented, tunnels must resolve to TCP, and
// every extension header must be one the profile can describe.
func Parse(data []byte) (*Packet, error) {
	p := &Packet{Data: data}
	off := 0
	for depth := 0; ; depth++ {
		if depth == maxIPHeaders {
			return nil, ErrUnsupportedHeader
		}
		if len(data)-off < 1 {
			return nil, ErrTruncated
		}
		var hdr IPHeader
		var next uint8
		switch data[off] >> 4 {
		case 4:
			if len(data)-off < IPv4HeaderLen {
				return nil, ErrTruncated
			}
			h := IPv4(data[off : off+IPv4HeaderLen])
			if h.HeaderLen() != IPv4HeaderLen {
				return nil, ErrIPv4Options
			}
			if h.RF() || h.MF() || h.FragmentOffset() != 0 {
				return nil, ErrFragmented
			}
			hdr = IPHeader{Version: 4, Raw: h}
			next = h.Protocol()
			off += IPv4HeaderLen
		case 6:
			if len(data)-off < IPv6HeaderLen {
				return nil, ErrTruncated
			}
			h := IPv6(data[off : off+IPv6HeaderLen])
			hdr = IPHeader{Version: 6, Raw: h}
			next = h.NextHeader()
			off += IPv6HeaderLen
			// Collect extension headers until the chain reaches TCP or a
			// tunneled IP header.
			for isExtension(next) {
				n := extensionLen(next, data[off:])
				if n == 0 || len(data)-off < n {
					return nil, ErrTruncated
				}
				ext := Extension{Proto: next, Raw: data[off : off+n]}
				if next == ProtoGRE {
					switch binary.BigEndian.Uint16(ext.Raw[2:4]) {
					case greTypeIPv4:
						next = ProtoIPIP
					case greTypeIPv6:
						next = ProtoIPv6
					default:
						return nil, ErrUnsupportedHeader
					}
				} else {
					next = ext.Raw[0]
				}
				hdr.Exts = append(hdr.Exts, ext)
				off += n
			}
		default:
			return nil, ErrNotIP
		}
		p.IP = append(p.IP, hdr)

		switch next {
		case ProtoTCP:
			if len(data)-off < TCPHeaderLen {
				return nil, ErrTruncated
			}
			t := TCP(data[off:])
			if t.DataOffset() < TCPHeaderLen || len(data)-off < t.DataOffset() {
				return nil, ErrTruncated
			}
			p.TCP = TCP(data[off : off+t.DataOffset()])
			p.PayloadOffset = off + t.DataOffset()
			return p, nil
		case ProtoIPIP, ProtoIPv6:
			// Tunneled IP header, keep walking.
		case ProtoFragment:
			return nil, ErrFragmented
		case ProtoESP, ProtoNoNext:
			return nil, ErrUnsupportedHeader
		default:
			return nil, ErrNotTCP
		}
	}
}

// isExtension reports whether proto is an extension or shim header that can
// sit between an IPv6 header and the next IP or TCP header.
func isExtension(proto uint8) bool {
	switch proto {
	case ProtoHopByHop, ProtoRouting, ProtoDestOpts, ProtoGRE, ProtoAH, ProtoMINE:
		return true
	}
	return false
}
