package plan

import "math"

// Fanout selection bounds. The fanout is always a power of two so the
// reduction tree has predictable depth and no straggler leaves.
const (
	FanoutMin = 2
	FanoutMax = 256

	// TargetRowsPerReducer is the row volume one reduce statement should
	// absorb; the shard count stands in for per-level input rows.
	TargetRowsPerReducer = 16_000_000
)

// Fanout computes how many level-N outputs feed one level-N+1 statement,
// given the table's shard count. The result is a power of two clamped to
// [FanoutMin, FanoutMax].
func Fanout(numShards int) int {
	if numShards < 1 {
		numShards = 1
	}
	ratio := float64(TargetRowsPerReducer) / float64(numShards)

	k := 1
	if ratio > 1 {
		k = 1 << int(math.Round(math.Log2(ratio)))
	}
	if k < FanoutMin {
		k = FanoutMin
	}
	if k > FanoutMax {
		k = FanoutMax
	}
	return k
}
