// Package tcpip provides zero-copy views over raw IPv4, IPv6, and TCP
// headers, and a packet walker that follows tunneled IP headers and IPv6
// extension headers down to the TCP header.
//
// The views keep the wire bytes untouched; every accessor converts between
// network byte order and host-order integers at the call boundary.  TCP
// option values are returned as raw bytes and decoded by the tcpopt
// package.
package tcpip

import "errors"

// IP protocol numbers the walker understands.
const (
	ProtoHopByHop = 0
	ProtoIPIP     = 4
	ProtoTCP      = 6
	ProtoIPv6     = 41
	ProtoRouting  = 43
	ProtoFragment = 44
	ProtoGRE      = 47
	ProtoESP      = 50
	ProtoAH       = 51
	ProtoMINE     = 55
	ProtoNoNext   = 59
	ProtoDestOpts = 60
)

// GRE ethertypes for the tunneled payload.
const (
	greTypeIPv4 = 0x0800
	greTypeIPv6 = 0x86DD
)

var (
	// ErrTruncated is returned when the buffer ends inside a header.
	ErrTruncated = errors.New("truncated packet")

	// ErrNotIP is returned when the outer header is neither IPv4 nor IPv6.
	ErrNotIP = errors.New("not an IP packet")

	// ErrNotTCP is returned when the transport is not TCP.
	ErrNotTCP = errors.New("transport is not TCP")

	// ErrFragmented is returned for fragments, which the profile rejects.
	ErrFragmented = errors.New("fragmented packet")

	// ErrIPv4Options is returned when an IPv4 header is longer than 20 bytes.
	ErrIPv4Options = errors.New("IPv4 header carries options")

	// ErrUnsupportedHeader is returned for headers the profile does not
	// cover (ESP, no next header, GRE payloads other than IPv4 or IPv6,
	// too-deep tunnels).  An unknown protocol number yields ErrNotTCP.
	ErrUnsupportedHeader = errors.New("unsupported header in chain")
)

// maxIPHeaders bounds the tunnel depth the walker will follow.
const maxIPHeaders = 4
