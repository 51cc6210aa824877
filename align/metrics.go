// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import "sync"

// Metrics accumulates counters describing one or more DP fill/
// backtrace attempts. A goroutine accumulates into its own Metrics
// without locking and calls Merge to fold the totals into a shared
// instance on exit, mirroring SSEMetrics::merge in the source aligner.
type Metrics struct {
	mu sync.Mutex

	DP     uint64 // DPs attempted
	DPSat  uint64 // DPs that saturated
	DPFail uint64 // DPs that produced no candidate solution cell
	DPSucc uint64 // DPs that produced at least one candidate solution cell

	Col   uint64 // DP columns filled
	Cell  uint64 // DP cells filled
	Inner uint64 // DP inner-loop iterations (stripe x lane steps)
	Fixup uint64 // cells (below row 0) visited by Farrar fix-up passes

	GathCell uint64 // cells examined while gathering solutions
	GathSol  uint64 // solution cells found while gathering

	BT     uint64 // backtraces attempted
	BTFail uint64 // backtraces that failed to reach a valid terminus
	BTSucc uint64 // backtraces that succeeded
	BTCell uint64 // cells traversed across all backtraces
}

// Merge folds o's counters into m. When takeLock is true, the merge
// is performed under m's mutex so it is safe to call concurrently
// with other Merge calls into the same destination; o itself is
// assumed to be owned solely by the calling goroutine and is read
// without locking.
func (m *Metrics) Merge(o *Metrics, takeLock bool) {
	if takeLock {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	m.DP += o.DP
	m.DPSat += o.DPSat
	m.DPFail += o.DPFail
	m.DPSucc += o.DPSucc
	m.Col += o.Col
	m.Cell += o.Cell
	m.Inner += o.Inner
	m.Fixup += o.Fixup
	m.GathCell += o.GathCell
	m.GathSol += o.GathSol
	m.BT += o.BT
	m.BTFail += o.BTFail
	m.BTSucc += o.BTSucc
	m.BTCell += o.BTCell
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	*m = Metrics{}
}
