package rohc

import (
	"math/bits"

	"github.com/nosmog/rohc/crc"
	"github.com/nosmog/rohc/flow"
	"github.com/nosmog/rohc/lsb"
	"github.com/nosmog/rohc/metrics"
	"github.com/nosmog/rohc/tcpip"
	"github.com/nosmog/rohc/tcpopt"
)

// analysis is everything compress decides about one packet before any
// byte is emitted: the diffs against the context, the tentative IP-ID
// behaviors, the option plan, and the values shared by the emitters.
type analysis struct {
	pkt *tcpip.Packet
	msn uint16

	// behaviors holds the tentative IP-ID behavior per stack entry
	// (random for IPv6 entries, where it is only a wire placeholder).
	behaviors []flow.IPIDBehavior

	plan       tcpopt.Plan
	payloadLen uint32
	stride     uint16
	seqScaled  uint32
	ackScaled  uint32

	seqChanged      bool
	ackChanged      bool
	winChanged      bool
	innerTTLChanged bool
	ttlIrregular    bool
	ecnUsed         bool

	forceIR       bool
	forceCoCommon bool
}

// oldTCP views the context's snapshot of the previous TCP header.
func (c *Compressor) oldTCP() tcpip.TCP { return tcpip.TCP(c.ctx.TCP.OldHeader[:]) }

func (c *Compressor) analyze(pkt *tcpip.Packet) (*analysis, error) {
	a := &analysis{pkt: pkt, msn: c.ctx.MSN + 1}
	opts, err := pkt.TCP.ParseOptions()
	if err != nil {
		return nil, err
	}

	t := pkt.TCP
	old := c.oldTCP()
	flags, oldFlags := t.Flags(), old.Flags()

	a.payloadLen = uint32(pkt.PayloadLen())
	a.seqChanged = t.SeqNum() != c.ctx.TCP.SeqNum
	a.ackChanged = t.AckNum() != c.ctx.TCP.AckNum
	a.winChanged = t.Window() != old.Window()

	// The ECN latch: once any header of the flow shows ECN in use, the
	// irregular chains carry ECN bytes for the rest of the flow.
	a.ecnUsed = c.ctx.TCP.ECNUsed
	if flags.ECN() != 0 {
		a.ecnUsed = true
	}
	for i := range pkt.IP {
		if pkt.IP[i].ECN() != 0 {
			a.ecnUsed = true
		}
	}

	if a.payloadLen > 0 {
		a.seqScaled, _ = lsb.Scale(t.SeqNum(), a.payloadLen)
	}
	a.stride = c.ctx.TCP.AckStride
	if a.stride > 0 {
		a.ackScaled, _ = lsb.Scale(t.AckNum(), uint32(a.stride))
	}

	inner := len(pkt.IP) - 1
	for i := range pkt.IP {
		c.analyzeIP(a, i, i == inner)
	}

	a.plan = c.ctx.Options.Plan(opts, t.AckNum())
	if a.plan.ForceIR {
		a.forceIR = true
	}
	if a.plan.Dropped > 0 {
		metrics.DroppedOptionCount.Add(float64(a.plan.Dropped))
	}

	// Flag changes the small formats cannot express.
	if flags.ACK() != oldFlags.ACK() || flags.URG() != oldFlags.URG() {
		a.forceCoCommon = true
	}
	if flags.URG() {
		// The urgent pointer always travels explicitly.
		a.forceCoCommon = true
	}
	if flags.ECN() != oldFlags.ECN() || a.ecnUsed != c.ctx.TCP.ECNUsed {
		a.forceCoCommon = true
	}
	if bits.OnesCount8(flags.RSF()) > 1 {
		a.forceIR = true
	}
	return a, nil
}

// analyzeIP classifies one stack entry's IP-ID behavior and records which
// of its slowly changing fields moved.  Changes the compressed formats
// cannot carry for outer headers force a resynchronization.
func (c *Compressor) analyzeIP(a *analysis, i int, innermost bool) {
	h := &a.pkt.IP[i]
	ctxIP := &c.ctx.IP[i]

	if h.Version == 4 {
		v4 := h.V4()
		cv4 := &ctxIP.V4
		var b flow.IPIDBehavior
		switch {
		case !innermost:
			// Outer IPv4 IP-IDs are representable as random or zero only.
			if v4.ID() == 0 {
				b = flow.IPIDZero
			} else {
				b = flow.IPIDRandom
			}
		case cv4.Behavior == flow.IPIDUnknown:
			b = flow.InitialIPIDBehavior(v4.ID())
		default:
			b = flow.NextIPIDBehavior(cv4.LastIPID, v4.ID())
		}
		a.behaviors = append(a.behaviors, b)
		if cv4.Behavior != flow.IPIDUnknown && b != cv4.Behavior {
			if innermost {
				a.forceCoCommon = true
			} else {
				a.forceIR = true
			}
		}
		if v4.DF() != cv4.DF || v4.DSCP() != cv4.DSCP {
			if innermost {
				a.forceCoCommon = true
			} else {
				a.forceIR = true
			}
		}
	} else {
		a.behaviors = append(a.behaviors, flow.IPIDRandom)
		if h.V6().DSCP() != ctxIP.V6.DSCP {
			if innermost {
				a.forceCoCommon = true
			} else {
				a.forceIR = true
			}
		}
		for j := range h.Exts {
			if ctxIP.V6.Exts[j].ExtChanged(&h.Exts[j]) {
				a.forceIR = true
			}
		}
	}

	if h.TTL() != ctxIP.TTL() {
		if innermost {
			a.innerTTLChanged = true
		} else {
			a.ttlIrregular = true
			a.forceCoCommon = true
		}
	}
}

// Compress compresses one packet of the flow, appending the ROHC header to
// dst (which may be nil) and returning the extended slice.  The caller
// completes the wire packet by appending data[Result.PayloadOffset:].
//
// The context is created from the first packet; later packets must match
// it or ErrContextMismatch is returned and nothing is consumed.
func (c *Compressor) Compress(dst, data []byte) ([]byte, Result, error) {
	pkt, err := tcpip.Parse(data)
	if err != nil {
		countErr("parse")
		return dst, Result{}, err
	}
	if c.ctx == nil {
		c.ctx = flow.New(pkt, uint16(c.random()))
	} else if !c.ctx.Matches(pkt) {
		countErr("context-mismatch")
		return dst, Result{}, ErrContextMismatch
	}

	a, err := c.analyze(pkt)
	if err != nil {
		countErr("options")
		return dst, Result{}, err
	}

	state := c.ctx.State
	if state != flow.IR && (a.forceIR || (c.irRefresh > 0 && c.sinceIR >= c.irRefresh)) {
		metrics.ForcedIRCount.Inc()
		state = flow.IR
	}

	emitStart := len(dst)
	dst = c.appendCID(dst)
	start := len(dst)

	var format Format
	switch state {
	case flow.IR:
		format = FormatIR
		dst = c.appendIR(dst, a)
	case flow.FO:
		format = FormatIRDyn
		dst = c.appendIRDyn(dst, a)
	default:
		format = c.classify(a)
		dst = c.appendCO(dst, start, format, a)
	}

	c.commit(a, format)

	res := Result{
		Format:        format,
		HeaderLen:     len(dst) - emitStart,
		PayloadOffset: pkt.PayloadOffset,
	}
	c.stats.Packets++
	c.stats.UncompressedBytes += pkt.PayloadOffset
	c.stats.CompressedBytes += res.HeaderLen
	metrics.PacketCount.WithLabelValues(format.String()).Inc()
	metrics.HeaderBytesHistogram.Observe(float64(res.HeaderLen))
	if saved := pkt.PayloadOffset - res.HeaderLen; saved > 0 {
		metrics.SavedBytesHistogram.Observe(float64(saved))
	}
	if c.trace != nil {
		c.trace(format, dst[emitStart:])
	}
	return dst, res, nil
}

func (c *Compressor) appendIR(dst []byte, a *analysis) []byte {
	start := len(dst)
	dst = append(dst, packetTypeIR, byte(ProfileTCP), 0)
	crcPos := start + 2
	dst = appendStaticChain(dst, a.pkt)
	dst = c.appendDynamicChain(dst, a)
	dst[crcPos] = crc.CRC8(dst[start:])
	return dst
}

func (c *Compressor) appendIRDyn(dst []byte, a *analysis) []byte {
	start := len(dst)
	dst = append(dst, packetTypeIRDyn, byte(ProfileTCP), 0)
	crcPos := start + 2
	dst = c.appendDynamicChain(dst, a)
	dst[crcPos] = crc.CRC8(dst[start:])
	return dst
}

func (c *Compressor) appendCO(dst []byte, start int, f Format, a *analysis) []byte {
	var slot crcSlot
	listSent := false
	switch f {
	case FormatSeq1:
		dst, slot = appendSeq1(dst, a)
	case FormatSeq2:
		dst, slot = appendSeq2(dst, a)
	case FormatSeq3:
		dst, slot = appendSeq3(dst, a)
	case FormatSeq4:
		dst, slot = appendSeq4(dst, a)
	case FormatSeq5:
		dst, slot = appendSeq5(dst, a)
	case FormatSeq6:
		dst, slot = appendSeq6(dst, a)
	case FormatSeq7:
		dst, slot = appendSeq7(dst, a)
	case FormatSeq8:
		listSent = a.plan.Changed
		dst, slot = appendSeq8(dst, a, listSent)
	case FormatRnd1:
		dst, slot = appendRnd1(dst, a)
	case FormatRnd2:
		dst, slot = appendRnd2(dst, a)
	case FormatRnd3:
		dst, slot = appendRnd3(dst, a)
	case FormatRnd4:
		dst, slot = appendRnd4(dst, a)
	case FormatRnd5:
		dst, slot = appendRnd5(dst, a)
	case FormatRnd6:
		dst, slot = appendRnd6(dst, a)
	case FormatRnd7:
		dst, slot = appendRnd7(dst, a)
	case FormatRnd8:
		listSent = a.plan.Changed
		dst, slot = appendRnd8(dst, a, listSent)
	default:
		listSent = a.plan.Changed
		dst, slot = c.appendCoCommon(dst, a)
	}
	dst = c.appendIrregularChain(dst, a, listSent)
	if listSent {
		dst = c.ctx.Options.AppendList(dst, a.plan, a.pkt.TCP.AckNum(), false)
	}
	patchCRC(dst, start, slot)
	return dst
}

// commit writes the packet back into the context: the invariant is that
// after commit, every cached field equals the packet just compressed.
func (c *Compressor) commit(a *analysis, format Format) {
	ctx := c.ctx
	t := a.pkt.TCP
	seq, ack := t.SeqNum(), t.AckNum()
	chainSent := format == FormatIR || format == FormatIRDyn

	ctx.MSN = a.msn
	switch format {
	case FormatIR:
		ctx.State = flow.FO
		c.sinceIR = 0
	case FormatIRDyn:
		ctx.State = flow.SO
		c.sinceIR++
	default:
		c.sinceIR++
	}

	tc := &ctx.TCP
	tc.UpdateAckStride(ack - tc.AckNum)
	if seq != tc.LastSeqNum {
		tc.SeqNumChangeCount++
		tc.LastSeqNum = seq
	}
	tc.SeqNum, tc.AckNum = seq, ack
	tc.OldHeader = t.Base()
	tc.ECNUsed = a.ecnUsed
	if a.payloadLen > 0 {
		tc.SeqFactor = a.payloadLen
		tc.SeqScaled, tc.SeqResidue = lsb.Scale(seq, a.payloadLen)
	}
	if tc.AckStride != 0 {
		tc.AckScaled, tc.AckResidue = lsb.Scale(ack, uint32(tc.AckStride))
	}
	if chainSent || format == FormatCoCommon {
		tc.ConveyedAckStride = a.stride
	}

	for i := range ctx.IP {
		h := &a.pkt.IP[i]
		ip := &ctx.IP[i]
		ip.SetTTL(h.TTL())
		if h.Version == 4 {
			v4 := h.V4()
			cv4 := &ip.V4
			cv4.LastBehavior = cv4.Behavior
			cv4.Behavior = a.behaviors[i]
			cv4.LastIPID = v4.ID()
			cv4.DSCP = v4.DSCP()
			cv4.DF = v4.DF()
			continue
		}
		ip.V6.DSCP = h.V6().DSCP()
		for j := range h.Exts {
			ec := &ip.V6.Exts[j]
			ext := &h.Exts[j]
			switch ext.Proto {
			case tcpip.ProtoGRE:
				if ext.GREHasSeq() {
					ec.Seq = ext.GRESeq()
				}
			case tcpip.ProtoAH:
				ec.Seq = ext.AHSeq()
			default:
				if chainSent {
					ec.Raw = append(ec.Raw[:0], ext.Raw...)
				}
			}
		}
	}
	ctx.TTLIrregular = a.ttlIrregular
	ctx.Options.Commit(a.plan)
}
