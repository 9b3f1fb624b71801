package servant

import (
	"math"
	"sync/atomic"
)

// requestID is the process-wide allocation counter.
var requestID atomic.Int32

// GenRequestID allocates the next request id. Ids are positive: the
// counter wraps from math.MaxInt32-1 back to 1 and never yields 0, which
// is reserved for server pushes. Uniqueness holds in practice — a
// collision would need over two billion ids in flight, and the pending
// table's single-shot completers tolerate one anyway.
func GenRequestID() int32 {
	for {
		current := requestID.Load()
		next := current + 1
		if current >= math.MaxInt32-1 {
			next = 1
		}
		if requestID.CompareAndSwap(current, next) {
			return next
		}
	}
}
