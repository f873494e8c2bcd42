// internal/game/engine.go
//
// Core game engine for a single Star Match round.
// Responsibilities:
//   - Create new rounds (random stars, tiles 1..9, 10 second budget).
//   - Toggle tiles in and out of the candidate selection.
//   - Resolve correct matches: consume tiles and draw a new solvable target.
//   - Count down the timer and derive won/lost.
//
// Notes:
//   - Invalid actions are no-ops; every mutator reports whether it changed anything.
//   - Tile statuses and the game state are derived on demand, never cached.
package game

import (
	"slices"

	"github.com/google/uuid"
)

const (
	MinNumber    = 1
	MaxNumber    = 9
	MaxSum       = 9
	RoundSeconds = 10
)

// NewRound constructs a fresh round.
// If rng is nil, a crypto/rand backed source is used.
func NewRound(rng Rand) *Round {
	if rng == nil {
		rng = CryptoRand()
	}
	avail := make([]int, 0, MaxNumber-MinNumber+1)
	for n := MinNumber; n <= MaxNumber; n++ {
		avail = append(avail, n)
	}
	return &Round{
		ID:          uuid.NewString(),
		Stars:       MinNumber + rng.IntN(MaxNumber-MinNumber+1),
		Available:   avail,
		Candidates:  []int{},
		SecondsLeft: RoundSeconds,
		rng:         rng,
	}
}

// State reports the derived game state.
func (r *Round) State() State {
	if len(r.Available) == 0 {
		return StateWon
	}
	if r.SecondsLeft <= 0 {
		return StateLost
	}
	return StateActive
}

// Tick advances the countdown by one second.
// It does nothing once the round is won or lost.
func (r *Round) Tick() bool {
	if r.State() != StateActive {
		return false
	}
	r.SecondsLeft--
	return true
}

// NumberStatus derives the status of tile n.
// Numbers outside 1..9 are never available and report as used.
func (r *Round) NumberStatus(n int) NumberStatus {
	if !slices.Contains(r.Available, n) {
		return StatusUsed
	}
	if slices.Contains(r.Candidates, n) {
		if sum(r.Candidates) > r.Stars {
			return StatusWrong
		}
		return StatusCandidate
	}
	return StatusAvailable
}

// SelectNumber toggles tile n and resolves a match when the selection sums to Stars.
//
// Rules:
//   - Ignored when the round is not active or n is used.
//   - Available tiles are appended to the selection, selected ones are removed.
//   - A selection that sums to Stars consumes its tiles and clears; a new target is
//     drawn from the remaining tiles unless none are left (won).
//   - Overshooting selections stay selected and show as wrong.
func (r *Round) SelectNumber(n int) bool {
	if r.State() != StateActive {
		return false
	}
	status := r.NumberStatus(n)
	if status == StatusUsed {
		return false
	}

	next := make([]int, 0, len(r.Candidates)+1)
	if status == StatusAvailable {
		next = append(next, r.Candidates...)
		next = append(next, n)
	} else {
		for _, c := range r.Candidates {
			if c != n {
				next = append(next, c)
			}
		}
	}

	if sum(next) != r.Stars {
		r.Candidates = next
		return true
	}

	remaining := make([]int, 0, len(r.Available))
	for _, a := range r.Available {
		if !slices.Contains(next, a) {
			remaining = append(remaining, a)
		}
	}
	r.Available = remaining
	r.Candidates = []int{}
	if len(remaining) == 0 {
		return true
	}
	if stars, err := PickTarget(remaining, MaxSum, r.rng); err == nil {
		r.Stars = stars
	}
	return true
}

// Snapshot copies the round into an immutable view.
func (r *Round) Snapshot() Snapshot {
	tiles := make([]Tile, 0, MaxNumber-MinNumber+1)
	for n := MinNumber; n <= MaxNumber; n++ {
		tiles = append(tiles, Tile{Number: n, Status: r.NumberStatus(n)})
	}
	return Snapshot{
		RoundID:     r.ID,
		Stars:       r.Stars,
		Numbers:     tiles,
		Candidates:  slices.Clone(r.Candidates),
		SecondsLeft: r.SecondsLeft,
		State:       r.State(),
	}
}

// NumbersUsed counts tiles consumed by correct matches.
func (r *Round) NumbersUsed() int {
	return MaxNumber - MinNumber + 1 - len(r.Available)
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
