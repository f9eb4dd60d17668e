package jobs

import "time"

// SetFlushInterval shortens the ledger retry cadence for tests. Call it
// before Start.
func SetFlushInterval(o *Orchestrator, interval time.Duration) {
	o.flushInterval = interval
}
