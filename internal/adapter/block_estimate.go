package adapter

import "time"

// ApproximateBlock estimates the block produced at target by walking back from
// the head at the chain's average block time. Targets at or after the head
// resolve to the head.
func ApproximateBlock(head uint64, headTime, target time.Time, avgBlockTime time.Duration) uint64 {
	if avgBlockTime <= 0 || !target.Before(headTime) {
		return head
	}
	back := uint64(headTime.Sub(target) / avgBlockTime)
	if back >= head {
		return 0
	}
	return head - back
}
