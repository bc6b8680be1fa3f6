// Package tcpopt implements the TCP option interning table of the ROHC TCP
// profile: a 16-slot associative store mapping option kinds to list indices
// and cached values, and the compressed option-list encoder built on it.
//
// The table is inspected without mutation while a packet is being
// classified (Plan), serialized by the chosen format (AppendList,
// AppendIrregular), and updated exactly once per compressed packet
// (Commit).
package tcpopt

import (
	"bytes"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/nosmog/rohc/lsb"
	"github.com/nosmog/rohc/tcpip"
)

// Well-known TCP option kinds.
const (
	KindEOL           = 0
	KindNOP           = 1
	KindMSS           = 2
	KindWS            = 3
	KindSACKPermitted = 4
	KindSACK          = 5
	KindTS            = 8
)

// Fixed list indices of the well-known kinds.  Slots 6, 7 and 9..15 are
// never bound to these kinds; 7 and 9..15 are allocated on demand for
// other kinds.
const (
	IndexEOL           = 0
	IndexNOP           = 1
	IndexMSS           = 2
	IndexWS            = 3
	IndexSACKPermitted = 4
	IndexSACK          = 5
	IndexTS            = 8
)

// NumSlots is the table size; XI items carry a 7-bit index so one octet
// per item always suffices.
const NumSlots = 16

// ArenaSize is the byte budget for cached generic option values.
const ArenaSize = 128

// kindFree marks an unbound slot.
const kindFree = 0xFF

var dropLog = logx.NewLogEvery(nil, 5*time.Second)

var kindToIndex = map[uint8]uint8{
	KindEOL:           IndexEOL,
	KindNOP:           IndexNOP,
	KindMSS:           IndexMSS,
	KindWS:            IndexWS,
	KindSACKPermitted: IndexSACKPermitted,
	KindSACK:          IndexSACK,
	KindTS:            IndexTS,
}

// dynamicSlots are the slots available to kinds outside the fixed map, in
// allocation order.
var dynamicSlots = []uint8{7, 9, 10, 11, 12, 13, 14, 15}

type slot struct {
	kind uint8

	// Cached values per kind.  Only the field matching the slot's kind is
	// meaningful.
	mss     uint16
	ws      uint8
	eolPad  uint8
	sack    [32]byte
	sackLen uint8

	// Generic option values live in the bump arena.
	genOff uint8
	genLen uint8
}

// Table is the per-flow option interning table.  Create it with NewTable,
// which marks every slot free; the zero value has no free slots.
type Table struct {
	slots [NumSlots]slot

	arena     [ArenaSize]byte
	arenaFree int

	// Timestamp references for the ts_lsb encodings.
	tsVal  uint32
	tsEcr  uint32
	tsSeen bool

	// Index sequence of the last committed packet's options.
	lastIndexes []uint8
}

// NewTable returns an empty table with every slot free.
func NewTable() *Table {
	t := &Table{}
	for i := range t.slots {
		t.slots[i].kind = kindFree
	}
	return t
}

// Item is one planned XI entry of a compressed option list.
type Item struct {
	Opt   tcpip.Option
	Index uint8
	// Present is the XI value-present bit: the item carries value bytes.
	Present bool
	// Establish means Commit must (re)write the slot's cached value.
	Establish bool
	// Dropped means no slot or arena space was available, or a well-known
	// option had a malformed length; the option is omitted from the
	// compressed list.
	Dropped bool
}

// Plan is the non-mutating analysis of one packet's options against the
// table.
type Plan struct {
	Items []Item
	// Changed reports that the compressed list must be sent: the option
	// structure differs from the last packet or a cached value changed.
	Changed bool
	// Dropped counts options omitted because the table or arena is full
	// or their length was malformed.
	Dropped int
	// ForceIR reports an option state this profile can only resynchronize
	// with a full context refresh (e.g. an uncompressible SACK delta).
	ForceIR bool

	// arenaNeed tracks arena bytes claimed by this plan's establishments.
	arenaNeed int
}

// Plan walks the packet's options in order and decides, for each, its slot
// index and whether its value must travel.  The table is not modified.
func (t *Table) Plan(opts []tcpip.Option, ack uint32) Plan {
	var p Plan
	indexes := make([]uint8, 0, len(opts))
	for _, opt := range opts {
		item := t.planOne(opt, ack, &p)
		if item.Dropped {
			p.Dropped++
			continue
		}
		p.Items = append(p.Items, item)
		indexes = append(indexes, item.Index)
		// A ticking timestamp re-establishes its references every packet
		// without forcing a list; everything else does.
		if item.Establish && item.Opt.Kind != KindTS {
			p.Changed = true
		}
	}
	if !equalIndexes(indexes, t.lastIndexes) {
		p.Changed = true
	}
	if len(p.Items) > 15 {
		// The list header's item count is a nibble.
		p.ForceIR = true
	}
	return p
}

func (t *Table) planOne(opt tcpip.Option, ack uint32, p *Plan) Item {
	idx, ok := kindToIndex[opt.Kind]
	if !ok {
		return t.planGeneric(opt, p)
	}
	s := &t.slots[idx]
	item := Item{Opt: opt, Index: idx}
	switch opt.Kind {
	case KindNOP, KindSACKPermitted:
		item.Establish = s.kind == kindFree
	case KindEOL:
		pad := uint8(len(opt.Data))
		item.Establish = s.kind == kindFree || s.eolPad != pad
		item.Present = item.Establish
	case KindMSS:
		if len(opt.Data) != 2 {
			item.Dropped = true
			return item
		}
		mss := lsb.Uint16(opt.Data)
		item.Establish = s.kind == kindFree || s.mss != mss
		item.Present = item.Establish
	case KindWS:
		if len(opt.Data) != 1 {
			item.Dropped = true
			return item
		}
		item.Establish = s.kind == kindFree || s.ws != opt.Data[0]
		item.Present = item.Establish
	case KindTS:
		if len(opt.Data) != 8 {
			item.Dropped = true
			return item
		}
		// The timestamp value changes on every packet; it always travels,
		// compressed against the cached references.
		item.Establish = true
		item.Present = true
	case KindSACK:
		if len(opt.Data) == 0 || len(opt.Data)%8 != 0 || len(opt.Data) > 32 {
			item.Dropped = true
			return item
		}
		item.Present = true
		item.Establish = s.kind == kindFree || !bytes.Equal(s.sack[:s.sackLen], opt.Data)
		if item.Establish {
			p.Changed = true
			if !sackCompressible(opt.Data, ack) {
				p.ForceIR = true
			}
		}
	}
	return item
}

func (t *Table) planGeneric(opt tcpip.Option, p *Plan) Item {
	item := Item{Opt: opt}
	// Same kind, same or different value: reuse the slot.
	for _, i := range dynamicSlots {
		s := &t.slots[i]
		if s.kind == opt.Kind {
			item.Index = i
			cached := t.arena[s.genOff : int(s.genOff)+int(s.genLen)]
			item.Establish = !bytes.Equal(cached, opt.Data)
			item.Present = item.Establish
			if item.Establish {
				if t.arenaFree+p.arenaNeed+len(opt.Data) > ArenaSize {
					item.Dropped = true
				} else {
					p.arenaNeed += len(opt.Data)
				}
			}
			return item
		}
	}
	// New kind: allocate a free dynamic slot not already claimed by an
	// earlier option of this packet.
	for _, i := range dynamicSlots {
		if t.slots[i].kind != kindFree || planClaims(p, i) {
			continue
		}
		if t.arenaFree+p.arenaNeed+len(opt.Data) > ArenaSize {
			dropLog.Printf("option arena full, dropping option kind %d", opt.Kind)
			item.Dropped = true
			return item
		}
		p.arenaNeed += len(opt.Data)
		item.Index = i
		item.Establish = true
		item.Present = true
		return item
	}
	dropLog.Printf("option table full, dropping option kind %d", opt.Kind)
	item.Dropped = true
	return item
}

func planClaims(p *Plan, index uint8) bool {
	for _, item := range p.Items {
		if item.Index == index {
			return true
		}
	}
	return false
}

// Commit applies a plan to the table: slot values, timestamp references,
// the generic-value arena, and the last-list record.  Call exactly once
// per compressed packet, after emission.
func (t *Table) Commit(p Plan) {
	indexes := make([]uint8, 0, len(p.Items))
	for _, item := range p.Items {
		indexes = append(indexes, item.Index)
		if !item.Establish {
			continue
		}
		opt := item.Opt
		if _, wellKnown := kindToIndex[opt.Kind]; !wellKnown {
			s := &t.slots[item.Index]
			s.kind = opt.Kind
			s.genOff = uint8(t.arenaFree)
			s.genLen = uint8(len(opt.Data))
			copy(t.arena[t.arenaFree:], opt.Data)
			t.arenaFree += len(opt.Data)
			continue
		}
		s := &t.slots[item.Index]
		s.kind = opt.Kind
		switch opt.Kind {
		case KindEOL:
			s.eolPad = uint8(len(opt.Data))
		case KindMSS:
			s.mss = lsb.Uint16(opt.Data)
		case KindWS:
			s.ws = opt.Data[0]
		case KindTS:
			t.tsVal = lsb.Uint32(opt.Data[0:4])
			t.tsEcr = lsb.Uint32(opt.Data[4:8])
			t.tsSeen = true
		case KindSACK:
			s.sackLen = uint8(copy(s.sack[:], opt.Data))
		}
	}
	t.lastIndexes = indexes
}

// TSRefs returns the cached timestamp references.
func (t *Table) TSRefs() (val, ecr uint32, ok bool) {
	return t.tsVal, t.tsEcr, t.tsSeen
}

func equalIndexes(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sackCompressible reports whether every edge of the SACK blocks is within
// the pure-LSB encoder's reach relative to ack.
func sackCompressible(data []byte, ack uint32) bool {
	base := ack
	for i := 0; i+8 <= len(data); i += 8 {
		start := lsb.Uint32(data[i : i+4])
		end := lsb.Uint32(data[i+4 : i+8])
		if _, ok := lsb.AppendSACKField(nil, start, base); !ok {
			return false
		}
		if _, ok := lsb.AppendSACKField(nil, end, start); !ok {
			return false
		}
		base = end
	}
	return true
}
