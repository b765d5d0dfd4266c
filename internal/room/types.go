package room

import "github.com/mincheol-dev/chessmatch/internal/rules"

// Phase is the room lifecycle. Transitions happen only under the room
// lock: Waiting -> Active on the second join, Active -> Terminal on a
// concluding move, Active -> Waiting when a participant leaves an
// unfinished game.
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhaseActive   Phase = "ACTIVE"
	PhaseTerminal Phase = "TERMINAL"
)

// Participant is one seat in a room. ConnID ties the seat to a
// transport connection; Name is the display identifier and carries no
// uniqueness guarantee. Automated is resolved once at join time from
// configuration, never re-derived per move.
type Participant struct {
	ConnID    string
	Name      string
	Color     rules.Color
	Automated bool
}

// Snapshot is an immutable copy of room state, safe to use after the
// room lock is released. White and Black carry the seat names as of
// the snapshot, so a participant leaving afterwards cannot blank them.
type Snapshot struct {
	RoomID       string
	Position     string
	Turn         rules.Color
	Status       string
	Phase        Phase
	Participants []string
	White        string
	Black        string
	Moves        []string
	LastMove     string
	Ply          int
	Terminal     bool
}

// WaitingRoom is one row of the waiting-room listing.
type WaitingRoom struct {
	RoomID           string   `json:"room_id"`
	Participants     []string `json:"participants"`
	ParticipantCount int      `json:"participant_count"`
}

// Move preconditions fail with exactly one of these, checked in order.
var (
	ErrRoomFull      = errf("room already has two participants")
	ErrNotReady      = errf("waiting for opponent")
	ErrGameOver      = errf("game is over")
	ErrNotYourTurn   = errf("not your turn")
	ErrStalePosition = errf("position is out of date")
	ErrIllegalMove   = errf("illegal move")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
