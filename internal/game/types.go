// internal/game/types.go
//
// Core type definitions for the Star Match engine.
// Defines:
//   - NumberStatus: per-tile status derived from a Round (available/used/candidate/wrong).
//   - State: coarse game state (active/won/lost).
//   - Round: live state of a single game.
//   - Snapshot: immutable copy of a Round handed to renderers.

package game

// NumberStatus represents how a single tile should be presented.
// Possible values:
//   - "available": tile can still be picked.
//   - "used":      tile was consumed by an earlier correct match.
//   - "candidate": tile is selected and the selection does not exceed the stars.
//   - "wrong":     tile is selected and the selection overshoots the stars.
type NumberStatus string

const (
	StatusAvailable NumberStatus = "available"
	StatusUsed      NumberStatus = "used"
	StatusCandidate NumberStatus = "candidate"
	StatusWrong     NumberStatus = "wrong"
)

// State is the derived state of a Round.
type State string

const (
	StateActive State = "active"
	StateWon    State = "won"
	StateLost   State = "lost"
)

// Round holds the state of a single Star Match game.
// A Round is not safe for concurrent use; callers serialize access.
type Round struct {
	ID          string // Unique round identifier (uuid).
	Stars       int    // Target sum, always within 1..MaxSum.
	Available   []int  // Tiles not yet consumed, ascending.
	Candidates  []int  // Current selection in click order; subset of Available.
	SecondsLeft int    // Countdown, RoundSeconds down to 0.

	rng Rand
}

// Tile is one entry of Snapshot.Numbers.
type Tile struct {
	Number int          `json:"number"`
	Status NumberStatus `json:"status"`
}

// Snapshot is a read-only view of a Round at one point in time.
type Snapshot struct {
	RoundID     string `json:"roundId"`
	Stars       int    `json:"stars"`
	Numbers     []Tile `json:"numbers"`
	Candidates  []int  `json:"candidates"`
	SecondsLeft int    `json:"secondsLeft"`
	State       State  `json:"state"`
}
