package game

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestAchievableSums(t *testing.T) {
	cases := []struct {
		name   string
		pool   []int
		maxSum int
		want   []int
	}{
		{"empty pool", nil, 9, []int{}},
		{"single", []int{4}, 9, []int{4}},
		{"over max", []int{10}, 9, []int{}},
		// 3 is reachable as {3} and {1,2}, so it appears twice.
		{"one two three", []int{1, 2, 3}, 9, []int{1, 2, 3, 3, 4, 5, 6}},
		{"capped", []int{4, 5, 6}, 9, []int{4, 5, 9, 6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AchievableSums(tc.pool, tc.maxSum)
			if !slices.Equal(got, tc.want) {
				t.Fatalf("AchievableSums(%v, %d) = %v, want %v", tc.pool, tc.maxSum, got, tc.want)
			}
		})
	}
}

func TestPickTargetRange(t *testing.T) {
	src := rand.New(rand.NewPCG(3, 9))
	allowed := []int{1, 2, 3, 4, 5, 6}
	for i := 0; i < 1000; i++ {
		got, err := PickTarget([]int{1, 2, 3}, 9, src)
		if err != nil {
			t.Fatalf("PickTarget: %v", err)
		}
		if !slices.Contains(allowed, got) {
			t.Fatalf("PickTarget({1,2,3}, 9) = %d, want one of %v", got, allowed)
		}
	}
}

func TestPickTargetFullPoolReachesEverySum(t *testing.T) {
	sums := AchievableSums([]int{1, 2, 3, 4, 5, 6, 7, 8, 9}, MaxSum)
	for want := 1; want <= MaxSum; want++ {
		if !slices.Contains(sums, want) {
			t.Fatalf("sum %d missing from full pool", want)
		}
	}
	for _, s := range sums {
		if s < 1 || s > MaxSum {
			t.Fatalf("sum %d out of range", s)
		}
	}
}

// TestPickTargetWeightsBySubsetCount documents that the draw is uniform over
// subsets, not over distinct sums: with {1,2,3} the sum 3 owns two of seven slots.
func TestPickTargetWeightsBySubsetCount(t *testing.T) {
	counts := map[int]int{}
	for i := 0; i < 7; i++ {
		got, err := PickTarget([]int{1, 2, 3}, 9, &seqRand{vals: []int{i}})
		if err != nil {
			t.Fatalf("PickTarget: %v", err)
		}
		counts[got]++
	}
	if counts[3] != 2 {
		t.Fatalf("sum 3 drawn %d times over all slots, want 2", counts[3])
	}
	for _, s := range []int{1, 2, 4, 5, 6} {
		if counts[s] != 1 {
			t.Fatalf("sum %d drawn %d times, want 1", s, counts[s])
		}
	}
}

func TestPickTargetNoTarget(t *testing.T) {
	for _, pool := range [][]int{nil, {}, {12, 15}} {
		if _, err := PickTarget(pool, 9, panicRand{t}); !errors.Is(err, ErrNoTarget) {
			t.Fatalf("PickTarget(%v) err = %v, want ErrNoTarget", pool, err)
		}
	}
}
