package game

import "errors"

// ErrNoTarget is returned when no non-empty subset of the pool fits under maxSum.
var ErrNoTarget = errors.New("game: no achievable target")

// AchievableSums enumerates every non-empty subset of pool whose sum is at most
// maxSum and returns the sums in discovery order. A sum reachable through several
// subsets appears once per subset, so the result is a multiset.
//
// The enumeration grows a list of subsets starting from the empty one: each pool
// element extends every subset recorded so far. Cost is exponential in len(pool),
// which is bounded by the nine tiles.
func AchievableSums(pool []int, maxSum int) []int {
	// Only the running total of each subset matters, so subsets are kept as sums.
	// sets[0] is the empty subset.
	sets := []int{0}
	for _, p := range pool {
		n := len(sets)
		for j := 0; j < n; j++ {
			if total := sets[j] + p; total <= maxSum {
				sets = append(sets, total)
			}
		}
	}
	return sets[1:]
}

// PickTarget draws a new star count from pool.
// The draw is uniform over the multiset from AchievableSums, i.e. weighted by the
// number of subsets producing each sum, not uniform over distinct sums.
func PickTarget(pool []int, maxSum int, rng Rand) (int, error) {
	sums := AchievableSums(pool, maxSum)
	if len(sums) == 0 {
		return 0, ErrNoTarget
	}
	if rng == nil {
		rng = CryptoRand()
	}
	return sums[rng.IntN(len(sums))], nil
}
