package prover

import "github.com/emirpasic/gods/queues/circularbuffer"

// HistorySize is the number of snapshots kept, one hour of one-minute ticks.
const HistorySize = 60

// RateHistory is a FIFO ring of counter snapshots, oldest evicted first.
type RateHistory struct {
	snapshots *circularbuffer.Queue
}

func NewRateHistory() *RateHistory {
	return &RateHistory{snapshots: circularbuffer.New(HistorySize)}
}

// Record appends a snapshot, evicting the oldest one when full.
func (h *RateHistory) Record(v uint64) {
	h.snapshots.Enqueue(v)
}

// Back returns the snapshot recorded n ticks ago; Back(1) is the most recent one.
// ok is false when fewer than n snapshots were recorded.
func (h *RateHistory) Back(n int) (v uint64, ok bool) {
	size := h.snapshots.Size()
	if n < 1 || n > size {
		return 0, false
	}
	return h.snapshots.Values()[size-n].(uint64), true
}

func (h *RateHistory) Len() int {
	return h.snapshots.Size()
}
