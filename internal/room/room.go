package room

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mincheol-dev/chessmatch/internal/rules"
)

// Room owns the authoritative state of one game session: the position,
// the move history, up to two seats, and the lifecycle phase. Every
// mutation runs under a single mutex so no two of join, move, and
// leave can interleave. Rooms never block each other.
type Room struct {
	id     string
	oracle *rules.Oracle

	mu           sync.Mutex
	position     string
	moves        []string
	turn         rules.Color
	status       string
	phase        Phase
	participants []*Participant
}

func New(id string, oracle *rules.Oracle) *Room {
	return &Room{
		id:       id,
		oracle:   oracle,
		position: rules.StartingFEN,
		turn:     rules.White,
		status:   rules.StatusOngoing,
		phase:    PhaseWaiting,
	}
}

func (r *Room) ID() string { return r.id }

// Join binds a connection to the first free seat. The first joiner
// plays White, the second Black; if White's seat was vacated mid-game
// a new joiner takes it over. A third join fails with ErrRoomFull;
// there is no reconnection-replaces-seat semantics.
func (r *Room) Join(connID, name string, automated bool) (Participant, Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.participants) >= 2 {
		return Participant{}, Snapshot{}, ErrRoomFull
	}
	color := rules.White
	if r.hasColorLocked(rules.White) {
		color = rules.Black
	}
	p := &Participant{ConnID: connID, Name: name, Color: color, Automated: automated}
	r.participants = append(r.participants, p)
	if len(r.participants) == 2 && r.phase == PhaseWaiting {
		r.phase = PhaseActive
	}
	return *p, r.snapshotLocked(), nil
}

// Leave vacates the seat bound to connID and reports how many seats
// remain occupied. A room abandoned mid-game drops back to Waiting so
// the listing can offer it again.
func (r *Room) Leave(connID string) (remaining int, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.participants[:0]
	for _, p := range r.participants {
		if p.ConnID == connID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	r.participants = kept
	if r.phase == PhaseActive && len(r.participants) < 2 {
		r.phase = PhaseWaiting
	}
	return len(r.participants), found
}

// SubmitMove runs the four precondition checks in order and, on
// success, atomically replaces the position with the oracle's result.
// expectedPosition guards against a client acting on stale state: a
// submission raced out by a concurrent move fails with
// ErrStalePosition instead of being applied twice.
func (r *Room) SubmitMove(actor, expectedPosition, move string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseTerminal {
		return Snapshot{}, ErrGameOver
	}
	if len(r.participants) < 2 {
		return Snapshot{}, ErrNotReady
	}
	mover := r.byColorLocked(r.turn)
	if mover == nil || mover.Name != actor {
		return Snapshot{}, ErrNotYourTurn
	}
	if expectedPosition != r.position {
		return Snapshot{}, ErrStalePosition
	}

	uci := strings.ToLower(strings.TrimSpace(move))
	verdict, err := r.oracle.Validate(r.moves, uci)
	if err != nil {
		return Snapshot{}, fmt.Errorf("oracle: %w", err)
	}
	if !verdict.Legal {
		return Snapshot{}, ErrIllegalMove
	}

	r.moves = append(r.moves, uci)
	r.position = verdict.NewPosition
	r.turn = verdict.NextTurn
	r.status = verdict.Status
	if verdict.Terminal {
		r.phase = PhaseTerminal
	}
	return r.snapshotLocked(), nil
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// ParticipantByColor returns a copy of the seat holding the color.
func (r *Room) ParticipantByColor(c rules.Color) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.byColorLocked(c); p != nil {
		return *p, true
	}
	return Participant{}, false
}

func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

func (r *Room) participantNamesLocked() []string {
	names := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		names = append(names, p.Name)
	}
	return names
}

func (r *Room) byColorLocked(c rules.Color) *Participant {
	for _, p := range r.participants {
		if p.Color == c {
			return p
		}
	}
	return nil
}

func (r *Room) hasColorLocked(c rules.Color) bool {
	return r.byColorLocked(c) != nil
}

func (r *Room) snapshotLocked() Snapshot {
	s := Snapshot{
		RoomID:       r.id,
		Position:     r.position,
		Turn:         r.turn,
		Status:       r.status,
		Phase:        r.phase,
		Participants: r.participantNamesLocked(),
		Moves:        append([]string(nil), r.moves...),
		Ply:          len(r.moves),
		Terminal:     r.phase == PhaseTerminal,
	}
	if n := len(r.moves); n > 0 {
		s.LastMove = r.moves[n-1]
	}
	if p := r.byColorLocked(rules.White); p != nil {
		s.White = p.Name
	}
	if p := r.byColorLocked(rules.Black); p != nil {
		s.Black = p.Name
	}
	return s
}
