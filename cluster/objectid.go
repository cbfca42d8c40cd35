package cluster

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is the four-part object identity from spec.md §3:
// "(collection_id: u32, key: UTF-8 string, unified_id: u64
// timestamp-derived, conjoined_part: u32=0 for non-conjoined)".
type ObjectID struct {
	CollectionID  uint32
	Key           string
	UnifiedID     uint64
	ConjoinedPart uint32
}

func (o ObjectID) String() string {
	if o.ConjoinedPart == 0 {
		return fmt.Sprintf("%d/%s@%d", o.CollectionID, o.Key, o.UnifiedID)
	}
	return fmt.Sprintf("%d/%s@%d#%d", o.CollectionID, o.Key, o.UnifiedID, o.ConjoinedPart)
}

// Uname is a stable per-object identity string independent of
// unified_id, used to correlate archives of the *same* (collection,key)
// across successive unified_ids (spec.md §3: "later unified_id supersede
// earlier ones"). Grounds the teacher's cluster.LOM.Uname() convention.
func (o ObjectID) Uname() string {
	return fmt.Sprintf("%d/%s", o.CollectionID, o.Key)
}

// lastUnifiedID guarantees monotonically increasing unified_ids even
// when two are minted within the same clock tick.
var lastUnifiedID uint64

// NewUnifiedID mints a timestamp-derived, monotonically increasing
// unified_id (spec.md glossary: "monotonically assigned identifier
// derived from timestamp"). A caller that reads the same (or an
// earlier) clock value as the previous one gets the previous id plus
// one, so that two archives of the same key started back-to-back
// within this process always compare with the later one winning, per
// spec.md §3.
func NewUnifiedID() uint64 {
	for {
		last := atomic.LoadUint64(&lastUnifiedID)
		next := uint64(time.Now().UnixNano())
		if next <= last {
			next = last + 1
		}
		if atomic.CompareAndSwapUint64(&lastUnifiedID, last, next) {
			return next
		}
	}
}
