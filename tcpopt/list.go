package tcpopt

import (
	"time"

	"github.com/m-lab/go/logx"

	"github.com/nosmog/rohc/lsb"
	"github.com/nosmog/rohc/tcpip"
)

var tsSlipLog = logx.NewLogEvery(nil, 5*time.Second)

// AppendList appends the compressed option list for a planned packet: the
// PS/m header octet, one XI octet per item, then the value bytes of every
// item whose value-present bit is set.  With full set (IR and IR-DYN
// chains) the timestamp travels uncompressed so the decompressor's
// references are seeded exactly.
func (t *Table) AppendList(dst []byte, p Plan, ack uint32, full bool) []byte {
	dst = append(dst, 0x10|byte(len(p.Items)))
	for _, item := range p.Items {
		xi := item.Index
		if item.Present {
			xi |= 0x80
		}
		dst = append(dst, xi)
	}
	for _, item := range p.Items {
		if item.Present {
			dst = t.appendItemValue(dst, item, ack, full)
		}
	}
	return dst
}

func (t *Table) appendItemValue(dst []byte, item Item, ack uint32, full bool) []byte {
	opt := item.Opt
	switch opt.Kind {
	case KindEOL:
		return append(dst, uint8(len(opt.Data)))
	case KindMSS:
		return append(dst, opt.Data[0], opt.Data[1])
	case KindWS:
		return append(dst, opt.Data[0])
	case KindTS:
		if full {
			return append(dst, opt.Data...)
		}
		return t.appendTS(dst, opt)
	case KindSACK:
		return appendSACKBlocks(dst, opt.Data, ack)
	default:
		// Generic option: self-describing so the slot can be established.
		dst = append(dst, opt.Kind, uint8(len(opt.Data)))
		return append(dst, opt.Data...)
	}
}

// appendTS emits the ts_lsb pair for a timestamp option against the cached
// references.
func (t *Table) appendTS(dst []byte, opt tcpip.Option) []byte {
	val := lsb.Uint32(opt.Data[0:4])
	ecr := lsb.Uint32(opt.Data[4:8])
	var ok1, ok2 bool
	dst, ok1 = lsb.AppendTS(dst, val, t.tsVal)
	dst, ok2 = lsb.AppendTS(dst, ecr, t.tsEcr)
	if t.tsSeen && (!ok1 || !ok2) {
		tsSlipLog.Printf("timestamp reference slipped, sending uncompressed fallback")
	}
	return dst
}

// appendSACKBlocks emits the block count followed by each block's edges,
// start relative to the previous end (the current ack for the first block)
// and end relative to its own start.  The planner has already verified
// every edge is encodable.
func appendSACKBlocks(dst []byte, data []byte, ack uint32) []byte {
	dst = append(dst, uint8(len(data)/8))
	base := ack
	for i := 0; i+8 <= len(data); i += 8 {
		start := lsb.Uint32(data[i : i+4])
		end := lsb.Uint32(data[i+4 : i+8])
		dst, _ = lsb.AppendSACKField(dst, start, base)
		dst, _ = lsb.AppendSACKField(dst, end, start)
		base = end
	}
	return dst
}

// AppendIrregular appends the per-packet option fields that travel outside
// the compressed list: the timestamp ts_lsb pair.  When the packet carried
// a list, the values already went out as items and nothing is emitted.
// SACK content is list-only; the classifier forces a list-bearing format
// whenever it changes.
func (t *Table) AppendIrregular(dst []byte, p Plan, listSent bool) []byte {
	if listSent {
		return dst
	}
	for _, item := range p.Items {
		if item.Opt.Kind == KindTS {
			dst = t.appendTS(dst, item.Opt)
		}
	}
	return dst
}
