package flow

import (
	"fmt"

	"github.com/nosmog/rohc/lsb"
)

// IPIDBehavior classifies how a flow's IPv4 identification field moves.
// The four low values are the on-wire ip_id_behavior codes of RFC 6846;
// Unknown exists only between context creation and the first compressed
// packet.
type IPIDBehavior uint8

// IP-ID behavior classes.
const (
	IPIDSequential        IPIDBehavior = 0
	IPIDSequentialSwapped IPIDBehavior = 1
	IPIDRandom            IPIDBehavior = 2
	IPIDZero              IPIDBehavior = 3
	IPIDUnknown           IPIDBehavior = 0xFF
)

var behaviorName = map[IPIDBehavior]string{
	IPIDSequential:        "sequential",
	IPIDSequentialSwapped: "sequential-swapped",
	IPIDRandom:            "random",
	IPIDZero:              "zero",
	IPIDUnknown:           "unknown",
}

func (b IPIDBehavior) String() string {
	if n, ok := behaviorName[b]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN_BEHAVIOR_%d", uint8(b))
}

// IsSequential reports whether b is one of the two sequential classes.
func (b IPIDBehavior) IsSequential() bool {
	return b == IPIDSequential || b == IPIDSequentialSwapped
}

// maxSequentialDelta is the largest forward step still considered
// sequential.  Larger jumps re-classify the field as random.
const maxSequentialDelta = 20

// InitialIPIDBehavior guesses a behavior from the flow's first packet,
// before any delta is observable.
func InitialIPIDBehavior(id uint16) IPIDBehavior {
	if id == 0 {
		return IPIDZero
	}
	return IPIDSequential
}

// NextIPIDBehavior classifies the step from the previous packet's IP-ID to
// the current one.  It never returns Unknown, so once a flow has two
// packets the behavior stays within the four wire classes.
func NextIPIDBehavior(lastID, id uint16) IPIDBehavior {
	if delta := id - lastID; delta > 0 && delta <= maxSequentialDelta {
		return IPIDSequential
	}
	if delta := lsb.Swap16(id) - lsb.Swap16(lastID); delta > 0 && delta <= maxSequentialDelta {
		return IPIDSequentialSwapped
	}
	if id == 0 && lastID == 0 {
		return IPIDZero
	}
	return IPIDRandom
}
