// Package flow holds the per-flow compression context of the ROHC TCP
// profile: the IP header sub-contexts, the TCP state snapshot, the master
// sequence number, and the compressor state machine.
package flow

import "fmt"

// State is the compressor state for one flow.  A new context starts in IR,
// moves to FO after the IR packet, reaches SO after the IR-DYN packet, and
// is knocked back to IR by anything the compressed formats cannot convey.
type State uint8

// Compressor states.
const (
	IR State = iota
	FO
	SO
)

var stateName = map[State]string{
	IR: "IR",
	FO: "FO",
	SO: "SO",
}

func (s State) String() string {
	if n, ok := stateName[s]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN_STATE_%d", uint8(s))
}
