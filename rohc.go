// Package rohc implements the compressor side of the RObust Header
// Compression TCP profile (RFC 6846).  For every packet of a TCP flow it
// replaces the IP header stack, the TCP header, and the TCP options with a
// compressed header that a synchronized decompressor expands back into the
// original bytes.
//
// One Compressor holds the context of one flow and is not threadsafe; a
// multiplexer owning many flows drives one Compressor per flow.  The
// engine performs no I/O and keeps no state outside its context.
package rohc

import (
	"errors"
	"math/rand"

	"github.com/nosmog/rohc/flow"
	"github.com/nosmog/rohc/metrics"
	"github.com/nosmog/rohc/tcpip"
)

// ProfileTCP is the ROHC profile identifier of RFC 6846.
const ProfileTCP = 0x0006

// First-octet discriminators of the chain-bearing packet types.
const (
	packetTypeIR    = 0xFD
	packetTypeIRDyn = 0xF8
)

// Package error values.
var (
	// ErrContextMismatch is returned when a packet's addresses or ports do
	// not match the compressor's flow.
	ErrContextMismatch = errors.New("packet does not belong to this context")
)

// Format identifies the emitted packet format.
type Format uint8

// The packet formats of the TCP profile.
const (
	FormatIR Format = iota
	FormatIRDyn
	FormatCoCommon
	FormatRnd1
	FormatRnd2
	FormatRnd3
	FormatRnd4
	FormatRnd5
	FormatRnd6
	FormatRnd7
	FormatRnd8
	FormatSeq1
	FormatSeq2
	FormatSeq3
	FormatSeq4
	FormatSeq5
	FormatSeq6
	FormatSeq7
	FormatSeq8
)

var formatName = map[Format]string{
	FormatIR:       "IR",
	FormatIRDyn:    "IR-DYN",
	FormatCoCommon: "co_common",
	FormatRnd1:     "rnd_1",
	FormatRnd2:     "rnd_2",
	FormatRnd3:     "rnd_3",
	FormatRnd4:     "rnd_4",
	FormatRnd5:     "rnd_5",
	FormatRnd6:     "rnd_6",
	FormatRnd7:     "rnd_7",
	FormatRnd8:     "rnd_8",
	FormatSeq1:     "seq_1",
	FormatSeq2:     "seq_2",
	FormatSeq3:     "seq_3",
	FormatSeq4:     "seq_4",
	FormatSeq5:     "seq_5",
	FormatSeq6:     "seq_6",
	FormatSeq7:     "seq_7",
	FormatSeq8:     "seq_8",
}

func (f Format) String() string {
	if n, ok := formatName[f]; ok {
		return n
	}
	return "unknown"
}

// ContextCheck is the routing verdict for a packet offered to a context.
type ContextCheck int

// Verdicts of Compressor.Check.
const (
	Belongs ContextCheck = iota
	NotBelongs
	CannotCompress
)

// Result describes one compressed packet.
type Result struct {
	Format Format
	// HeaderLen is the number of ROHC header bytes appended.
	HeaderLen int
	// PayloadOffset is where the TCP payload starts in the source packet;
	// the caller splices Data[PayloadOffset:] after the ROHC header.
	PayloadOffset int
}

// Stats is a snapshot of one compressor's byte accounting.
type Stats struct {
	Packets           int
	UncompressedBytes int
	CompressedBytes   int
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithRandom replaces the MSN seed source.
func WithRandom(r func() uint32) Option {
	return func(c *Compressor) { c.random = r }
}

// WithTrace installs a best-effort callback invoked with every emitted
// packet.  The slice is only valid during the call.
func WithTrace(fn func(Format, []byte)) Option {
	return func(c *Compressor) { c.trace = fn }
}

// WithCID sets a small context identifier.  A non-zero CID is emitted as
// an add-CID octet before every packet; CID zero adds nothing.
func WithCID(cid uint8) Option {
	return func(c *Compressor) { c.cid = cid & 0x0F }
}

// WithIRRefresh re-seeds the context with an IR packet once n packets have
// followed the last IR, so an IR goes out every n+1 packets.  Zero disables
// periodic refresh.
func WithIRRefresh(n int) Option {
	return func(c *Compressor) { c.irRefresh = n }
}

// Compressor compresses one TCP flow.  The context is created from the
// first packet passed to Compress.
type Compressor struct {
	ctx *flow.Context

	random    func() uint32
	trace     func(Format, []byte)
	cid       uint8
	irRefresh int
	sinceIR   int

	stats Stats
}

// NewCompressor returns a compressor with no context yet.
func NewCompressor(options ...Option) *Compressor {
	c := &Compressor{
		random: rand.Uint32,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Context exposes the flow context, mainly for tests and tooling.  It is
// nil until the first packet has been compressed.
func (c *Compressor) Context() *flow.Context { return c.ctx }

// Stats returns the byte accounting so far.
func (c *Compressor) Stats() Stats { return c.stats }

// CheckProfile reports whether the packet is structurally eligible for
// this profile: IP version 4 (option-free, unfragmented) or 6 at every
// layer of the stack, tunnels resolving to TCP, and no header kind the
// profile cannot describe.
func CheckProfile(data []byte) bool {
	_, err := tcpip.Parse(data)
	return err == nil
}

// Check routes a packet against this compressor's context.
func (c *Compressor) Check(data []byte) ContextCheck {
	pkt, err := tcpip.Parse(data)
	switch {
	case errors.Is(err, tcpip.ErrUnsupportedHeader):
		return CannotCompress
	case err != nil:
		return NotBelongs
	}
	if c.ctx == nil || c.ctx.Matches(pkt) {
		return Belongs
	}
	return NotBelongs
}

// appendCID emits the add-CID octet for small CIDs 1..15.
func (c *Compressor) appendCID(dst []byte) []byte {
	if c.cid != 0 {
		dst = append(dst, 0xE0|c.cid)
	}
	return dst
}

func countErr(kind string) {
	metrics.ErrorCount.WithLabelValues(kind).Inc()
}
