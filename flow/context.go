package flow

import (
	"bytes"

	"github.com/nosmog/rohc/tcpip"
	"github.com/nosmog/rohc/tcpopt"
)

// IPv4Context is the remembered state of one IPv4 header in the stack.
type IPv4Context struct {
	SrcAddr  [4]byte
	DstAddr  [4]byte
	Protocol uint8
	DSCP     uint8
	DF       bool
	TTL      uint8

	LastIPID     uint16
	Behavior     IPIDBehavior
	LastBehavior IPIDBehavior
}

// ExtensionContext is the remembered state of one IPv6 extension header.
// Raw caches the full header bytes of kinds carried opaquely; the GRE and
// AH sequence numbers are cached separately for their LSB encodings.
type ExtensionContext struct {
	Proto uint8
	Raw   []byte

	// GRE only.
	CFlag, KFlag, SFlag bool
	Key                 uint32

	// GRE and AH.
	Seq uint32
	// AH only.
	SPI uint32
}

// IPv6Context is the remembered state of one IPv6 header in the stack.
type IPv6Context struct {
	SrcAddr    [16]byte
	DstAddr    [16]byte
	NextHeader uint8
	DSCP       uint8
	FlowLabel  uint32
	TTL        uint8

	Exts []ExtensionContext
}

// IPContext is one entry of the per-flow IP header stack, a tagged variant
// over the two versions.
type IPContext struct {
	Version uint8
	V4      IPv4Context
	V6      IPv6Context
}

// TTL returns the cached TTL or hop limit.
func (c *IPContext) TTL() uint8 {
	if c.Version == 4 {
		return c.V4.TTL
	}
	return c.V6.TTL
}

// SetTTL updates the cached TTL or hop limit.
func (c *IPContext) SetTTL(ttl uint8) {
	if c.Version == 4 {
		c.V4.TTL = ttl
	} else {
		c.V6.TTL = ttl
	}
}

// DSCP returns the cached DSCP.
func (c *IPContext) DSCP() uint8 {
	if c.Version == 4 {
		return c.V4.DSCP
	}
	return c.V6.DSCP
}

// TCPContext is the remembered TCP state of the flow.
type TCPContext struct {
	SrcPort uint16
	DstPort uint16

	// Last sent values, host order.
	SeqNum uint32
	AckNum uint32

	// OldHeader is the fixed 20-byte header of the last compressed packet.
	OldHeader [20]byte

	ECNUsed bool

	// Scaled sequence state: SeqFactor is the payload length the scaling
	// was derived from.
	SeqFactor  uint32
	SeqScaled  uint32
	SeqResidue uint32

	// Ack stride state.  AckStride zero means scaling is off.  The scaled
	// formats are only usable once the stride has been conveyed to the
	// decompressor through a dynamic chain or a co_common header.
	AckStride         uint16
	ConveyedAckStride uint16
	AckScaled         uint32
	AckResidue        uint32
	lastAckDelta      uint32

	LastSeqNum        uint32
	SeqNumChangeCount int
}

// Context is the complete per-flow compression context.  It owns all of
// its sub-contexts; nothing in it aliases packet memory.
type Context struct {
	// IP is the header stack, outermost first.
	IP  []IPContext
	TCP TCPContext

	// MSN is the 16-bit master sequence number, incremented once per
	// compressed packet.
	MSN uint16

	State State

	Options *tcpopt.Table

	// TTLIrregular is set for one packet when an outer TTL changed, and
	// forces the TTL bytes onto the irregular chain.
	TTLIrregular bool
}

// New builds a context from the flow's first packet.  seed initializes the
// master sequence number; the first compressed packet will carry seed+1.
func New(p *tcpip.Packet, seed uint16) *Context {
	c := &Context{
		MSN:     seed,
		State:   IR,
		Options: tcpopt.NewTable(),
	}
	for i := range p.IP {
		c.IP = append(c.IP, newIPContext(&p.IP[i]))
	}
	t := &c.TCP
	t.SrcPort = p.TCP.SrcPort()
	t.DstPort = p.TCP.DstPort()
	t.LastSeqNum = p.TCP.SeqNum()
	return c
}

func newIPContext(h *tcpip.IPHeader) IPContext {
	if h.Version == 4 {
		v4 := h.V4()
		return IPContext{
			Version: 4,
			V4: IPv4Context{
				SrcAddr:      v4.SrcAddr(),
				DstAddr:      v4.DstAddr(),
				Protocol:     v4.Protocol(),
				DSCP:         v4.DSCP(),
				DF:           v4.DF(),
				TTL:          v4.TTL(),
				LastIPID:     v4.ID(),
				Behavior:     IPIDUnknown,
				LastBehavior: IPIDUnknown,
			},
		}
	}
	v6 := h.V6()
	ctx := IPContext{
		Version: 6,
		V6: IPv6Context{
			SrcAddr:    v6.SrcAddr(),
			DstAddr:    v6.DstAddr(),
			NextHeader: v6.NextHeader(),
			DSCP:       v6.DSCP(),
			FlowLabel:  v6.FlowLabel(),
			TTL:        v6.HopLimit(),
		},
	}
	for i := range h.Exts {
		ext := &h.Exts[i]
		ec := ExtensionContext{Proto: ext.Proto}
		ec.Raw = append(ec.Raw, ext.Raw...)
		switch ext.Proto {
		case tcpip.ProtoGRE:
			ec.CFlag = ext.GREHasChecksum()
			ec.KFlag = ext.GREHasKey()
			ec.SFlag = ext.GREHasSeq()
			if ec.KFlag {
				ec.Key = ext.GREKey()
			}
			if ec.SFlag {
				ec.Seq = ext.GRESeq()
			}
		case tcpip.ProtoAH:
			ec.SPI = ext.AHSPI()
			ec.Seq = ext.AHSeq()
		}
		ctx.V6.Exts = append(ctx.V6.Exts, ec)
	}
	return ctx
}

// Matches reports whether the packet belongs to this context: same stack
// shape, same addresses, same IPv6 flow labels and extension kinds, and
// the same TCP port pair.
func (c *Context) Matches(p *tcpip.Packet) bool {
	if len(p.IP) != len(c.IP) {
		return false
	}
	for i := range c.IP {
		if !c.ipMatches(&c.IP[i], &p.IP[i]) {
			return false
		}
	}
	return p.TCP.SrcPort() == c.TCP.SrcPort && p.TCP.DstPort() == c.TCP.DstPort
}

func (c *Context) ipMatches(ctx *IPContext, h *tcpip.IPHeader) bool {
	if ctx.Version != h.Version {
		return false
	}
	if h.Version == 4 {
		v4 := h.V4()
		return v4.SrcAddr() == ctx.V4.SrcAddr &&
			v4.DstAddr() == ctx.V4.DstAddr &&
			v4.Protocol() == ctx.V4.Protocol &&
			len(h.Exts) == 0
	}
	v6 := h.V6()
	if v6.SrcAddr() != ctx.V6.SrcAddr || v6.DstAddr() != ctx.V6.DstAddr ||
		v6.FlowLabel() != ctx.V6.FlowLabel {
		return false
	}
	if len(h.Exts) != len(ctx.V6.Exts) {
		return false
	}
	for i := range h.Exts {
		if h.Exts[i].Proto != ctx.V6.Exts[i].Proto {
			return false
		}
	}
	return true
}

// ExtChanged reports whether an opaque extension header's content differs
// from the cached copy.  GRE and AH are excluded: their changing fields
// have their own encodings.
func (c *ExtensionContext) ExtChanged(ext *tcpip.Extension) bool {
	switch c.Proto {
	case tcpip.ProtoGRE, tcpip.ProtoAH:
		return false
	}
	return !bytes.Equal(c.Raw, ext.Raw)
}

// UpdateAckStride feeds one observed ack delta into the stride detector.
// The stride engages when the same non-zero delta is seen twice in a row.
func (t *TCPContext) UpdateAckStride(delta uint32) {
	if delta == 0 {
		return
	}
	if delta == t.lastAckDelta && delta <= 0xFFFF {
		t.AckStride = uint16(delta)
	}
	t.lastAckDelta = delta
}
