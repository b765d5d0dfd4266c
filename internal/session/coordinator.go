package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mincheol-dev/chessmatch/internal/advisor"
	"github.com/mincheol-dev/chessmatch/internal/archive"
	"github.com/mincheol-dev/chessmatch/internal/obslog"
	"github.com/mincheol-dev/chessmatch/internal/room"
	"github.com/mincheol-dev/chessmatch/internal/rules"
)

const defaultRoomID = "default"

// ErrNotYourRoom rejects a move for a room the connection never joined.
var ErrNotYourRoom = errors.New("not joined to this room")

// Sender delivers one encoded event to a client connection.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// Recorder archives a finished game. Implementations must tolerate
// being called from a background goroutine.
type Recorder interface {
	Record(ctx context.Context, rec archive.Record) error
}

type connState int

const (
	stateUnjoined connState = iota
	stateJoined
	stateClosed
)

// Conn is the coordinator's view of one client connection and its
// state machine: Unjoined -> Joined -> Closed, never back. Events for
// a connection arrive from a single transport read loop; the mutex
// only guards against a disconnect racing that loop.
type Conn struct {
	id   string
	send Sender

	mu     sync.Mutex
	state  connState
	name   string
	roomID string
	color  rules.Color
}

func (c *Conn) ID() string { return c.id }

// Options tunes the automated-move path.
type Options struct {
	AutomatedNames []string
	Budget         advisor.Budget
	FallbackLegal  bool
	SendTimeout    time.Duration
}

// Coordinator routes connection events into rooms and fans resulting
// state out to every connection attached to the affected room.
type Coordinator struct {
	registry  *room.Registry
	oracle    *rules.Oracle
	adv       advisor.Advisor // nil when no advisor is configured
	recorders []Recorder
	opts      Options
	automated map[string]struct{}

	mu      sync.Mutex
	fanouts map[string]*fanout
}

// fanout is the set of connections attached to one room. Its mutex
// serializes whole broadcasts and join-time registration, so every
// connection observes a room's messages in the order they were
// produced.
type fanout struct {
	mu      sync.Mutex
	members map[string]*Conn
	cancel  context.CancelFunc // pending advisor computation, if any
}

func New(registry *room.Registry, oracle *rules.Oracle, adv advisor.Advisor, opts Options, recorders ...Recorder) *Coordinator {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	automated := make(map[string]struct{}, len(opts.AutomatedNames))
	for _, n := range opts.AutomatedNames {
		if s := strings.ToLower(strings.TrimSpace(n)); s != "" {
			automated[s] = struct{}{}
		}
	}
	return &Coordinator{
		registry:  registry,
		oracle:    oracle,
		adv:       adv,
		recorders: recorders,
		opts:      opts,
		automated: automated,
		fanouts:   make(map[string]*fanout),
	}
}

// Connect registers a new transport connection in state Unjoined.
func (s *Coordinator) Connect(send Sender) *Conn {
	return &Conn{id: uuid.NewString(), send: send}
}

// HandleJoin processes a join_room event. Failures are reported only
// to the requesting connection and leave its state untouched.
func (s *Coordinator) HandleJoin(ctx context.Context, c *Conn, data JoinRoomData) {
	name := strings.TrimSpace(data.Identifier)
	roomID := strings.TrimSpace(data.RoomID)
	if roomID == "" {
		roomID = defaultRoomID
	}
	if name == "" {
		s.sendTo(c, errorEvent("identifier is required"))
		return
	}

	c.mu.Lock()
	if c.state != stateUnjoined {
		c.mu.Unlock()
		s.sendTo(c, errorEvent("already joined a room"))
		return
	}
	c.mu.Unlock()

	r := s.registry.GetOrCreate(roomID)
	p, snap, err := r.Join(c.id, name, s.isAutomated(name))
	if err != nil {
		obslog.L().Info("room_join_rejected",
			zap.String("room_id", roomID),
			zap.String("identifier", name),
			zap.Error(err),
		)
		s.sendTo(c, errorEvent("room is full"))
		return
	}

	c.mu.Lock()
	c.state = stateJoined
	c.name = name
	c.roomID = roomID
	c.color = p.Color
	c.mu.Unlock()

	obslog.L().Info("room_join",
		zap.String("room_id", roomID),
		zap.String("identifier", name),
		zap.String("color", string(p.Color)),
		zap.Bool("automated", p.Automated),
		zap.Int("participants", len(snap.Participants)),
	)

	// Registration and the join-time sends run under the fanout mutex,
	// the same serialization point as move broadcasts. The snapshot is
	// re-read there: a move committed before this block is reflected in
	// it, a move committed after queues its broadcast behind the lock,
	// so the joiner never receives a snapshot older than a broadcast it
	// already saw.
	f := s.fanout(roomID)
	f.mu.Lock()
	f.members[c.id] = c
	snap = r.Snapshot()
	joinedEv := Event{Event: EvtParticipantJoined, Data: ParticipantJoinedData{
		Identifier:   name,
		Participants: snap.Participants,
	}}
	for id, m := range f.members {
		if id != c.id {
			s.sendTo(m, joinedEv)
		}
	}
	s.sendTo(c, gameStateEvent(snap))
	if snap.Phase == room.PhaseActive {
		stateEv := gameStateEvent(snap)
		for _, m := range f.members {
			s.sendTo(m, stateEv)
		}
	}
	f.mu.Unlock()

	s.maybeAutoMove(r)
}

// HandleMove processes a player_move event. Validation failures go
// only to the originating connection and never mutate room state.
func (s *Coordinator) HandleMove(ctx context.Context, c *Conn, data PlayerMoveData) {
	roomID := strings.TrimSpace(data.RoomID)
	if roomID == "" {
		roomID = defaultRoomID
	}

	c.mu.Lock()
	joined := c.state == stateJoined && c.roomID == roomID
	actor := c.name
	c.mu.Unlock()
	if !joined {
		s.sendTo(c, errorEvent(ErrNotYourRoom.Error()))
		return
	}

	r, ok := s.registry.Get(roomID)
	if !ok {
		s.sendTo(c, errorEvent("room not found"))
		return
	}

	snap, err := r.SubmitMove(actor, data.ExpectedPosition, data.Move)
	if err != nil {
		obslog.L().Debug("move_rejected",
			zap.String("room_id", roomID),
			zap.String("identifier", actor),
			zap.Error(err),
		)
		s.sendTo(c, errorEvent(moveErrorMessage(err)))
		return
	}

	s.afterMove(r, snap, actor)
}

// HandleDisconnect tears the connection down. Idempotent: a second
// disconnect on a closed connection is a no-op.
func (s *Coordinator) HandleDisconnect(c *Conn) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	wasJoined := c.state == stateJoined
	roomID := c.roomID
	name := c.name
	c.state = stateClosed
	c.mu.Unlock()

	if !wasJoined {
		return
	}

	r, ok := s.registry.Get(roomID)
	if !ok {
		return
	}
	remaining, found := r.Leave(c.id)

	if f := s.getFanout(roomID); f != nil {
		f.remove(c.id)
	}

	obslog.L().Info("room_leave",
		zap.String("room_id", roomID),
		zap.String("identifier", name),
		zap.Int("remaining", remaining),
	)

	if found && remaining > 0 {
		s.broadcast(roomID, Event{Event: EvtOpponentDisconnected, Data: struct{}{}})
	}
	if remaining == 0 {
		s.cancelPending(roomID)
		s.registry.Remove(roomID, r)
		s.dropFanout(roomID)
	}
}

// afterMove broadcasts an accepted move and either archives the
// finished game or hands the turn to the advisor path.
func (s *Coordinator) afterMove(r *room.Room, snap room.Snapshot, actor string) {
	s.broadcast(snap.RoomID, Event{Event: EvtMoveUpdate, Data: MoveUpdateData{
		Position:   snap.Position,
		Move:       snap.LastMove,
		Identifier: actor,
	}})
	s.broadcast(snap.RoomID, gameStateEvent(snap))

	obslog.L().Info("move_applied",
		zap.String("room_id", snap.RoomID),
		zap.String("identifier", actor),
		zap.String("move", snap.LastMove),
		zap.String("turn", string(snap.Turn)),
		zap.String("status", snap.Status),
		zap.Int("ply", snap.Ply),
	)

	if snap.Terminal {
		s.cancelPending(snap.RoomID)
		s.recordFinished(snap)
		return
	}
	s.maybeAutoMove(r)
}

// maybeAutoMove kicks off an advisor recommendation when the side to
// move belongs to an automated participant. The recommendation runs
// against a snapshot with no lock held; the re-entrant submission is
// validated like any other move, so a human move racing ahead safely
// invalidates it.
func (s *Coordinator) maybeAutoMove(r *room.Room) {
	if s.adv == nil {
		return
	}
	snap := r.Snapshot()
	if snap.Phase != room.PhaseActive {
		return
	}
	p, ok := r.ParticipantByColor(snap.Turn)
	if !ok || !p.Automated {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Budget.Deadline())
	s.fanout(snap.RoomID).setCancel(cancel)
	go s.autoMove(ctx, cancel, r, snap, p)
}

func (s *Coordinator) autoMove(ctx context.Context, cancel context.CancelFunc, r *room.Room, snap room.Snapshot, p room.Participant) {
	defer cancel()

	move, err := s.adv.Recommend(ctx, snap.Position, snap.Moves, s.opts.Budget)
	if err != nil {
		obslog.L().Warn("advisor_unavailable",
			zap.String("room_id", snap.RoomID),
			zap.String("identifier", p.Name),
			zap.Error(err),
		)
		if !s.opts.FallbackLegal {
			return
		}
		move, err = s.oracle.FirstLegal(snap.Moves)
		if err != nil {
			obslog.L().Warn("advisor_fallback_failed", zap.String("room_id", snap.RoomID), zap.Error(err))
			return
		}
	}

	next, err := r.SubmitMove(p.Name, snap.Position, move)
	if err != nil {
		// Raced out by a concurrent move or the room changed under us.
		obslog.L().Debug("advisor_move_discarded",
			zap.String("room_id", snap.RoomID),
			zap.String("move", move),
			zap.Error(err),
		)
		return
	}

	obslog.L().Info("advisor_move",
		zap.String("room_id", snap.RoomID),
		zap.String("identifier", p.Name),
		zap.String("move", move),
	)
	s.afterMove(r, next, p.Name)
}

// recordFinished archives a terminal snapshot. Seat names come from
// the snapshot itself, so a disconnect racing the final move cannot
// blank them.
func (s *Coordinator) recordFinished(snap room.Snapshot) {
	if len(s.recorders) == 0 {
		return
	}
	pgn, err := s.oracle.PGN(snap.Moves)
	if err != nil {
		obslog.L().Error("archive_pgn_error", zap.String("room_id", snap.RoomID), zap.Error(err))
	}
	rec := archive.Record{
		RoomID:     snap.RoomID,
		White:      snap.White,
		Black:      snap.Black,
		MovesUCI:   snap.Moves,
		PGN:        pgn,
		Status:     snap.Status,
		FinishedAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, rec2 := range s.recorders {
			if err := rec2.Record(ctx, rec); err != nil {
				obslog.L().Error("archive_record_error", zap.String("room_id", rec.RoomID), zap.Error(err))
			}
		}
	}()
}

func (s *Coordinator) isAutomated(name string) bool {
	_, ok := s.automated[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// fanout returns the fanout for roomID, creating it on first use.
func (s *Coordinator) fanout(roomID string) *fanout {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fanouts[roomID]
	if !ok {
		f = &fanout{members: make(map[string]*Conn)}
		s.fanouts[roomID] = f
	}
	return f
}

func (s *Coordinator) getFanout(roomID string) *fanout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanouts[roomID]
}

func (s *Coordinator) dropFanout(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fanouts, roomID)
}

func (s *Coordinator) cancelPending(roomID string) {
	if f := s.getFanout(roomID); f != nil {
		f.setCancel(nil)
	}
}

func (s *Coordinator) broadcast(roomID string, ev Event) {
	s.broadcastExcept(roomID, "", ev)
}

func (s *Coordinator) broadcastExcept(roomID, exceptID string, ev Event) {
	f := s.getFanout(roomID)
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.members {
		if id == exceptID {
			continue
		}
		s.sendTo(c, ev)
	}
}

func (s *Coordinator) sendTo(c *Conn, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SendTimeout)
	defer cancel()
	if err := c.send.Send(ctx, ev); err != nil {
		obslog.L().Warn("send_error",
			zap.String("conn_id", c.id),
			zap.String("event", ev.Event),
			zap.Error(err),
		)
	}
}

func (f *fanout) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, id)
}

// setCancel replaces the pending advisor cancel func, cancelling any
// previous computation. Pass nil to just cancel.
func (f *fanout) setCancel(cancel context.CancelFunc) {
	f.mu.Lock()
	prev := f.cancel
	f.cancel = cancel
	f.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func gameStateEvent(snap room.Snapshot) Event {
	return Event{Event: EvtGameState, Data: GameStateData{
		Position:     snap.Position,
		Turn:         string(snap.Turn),
		Status:       snap.Status,
		Participants: snap.Participants,
		RoomID:       snap.RoomID,
	}}
}

func errorEvent(msg string) Event {
	return Event{Event: EvtError, Data: ErrorData{Message: msg}}
}

func moveErrorMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrNotReady):
		return "waiting for opponent"
	case errors.Is(err, room.ErrGameOver):
		return "game is over"
	case errors.Is(err, room.ErrNotYourTurn):
		return "not your turn"
	case errors.Is(err, room.ErrStalePosition):
		return "position is out of date"
	case errors.Is(err, room.ErrIllegalMove):
		return "invalid move"
	default:
		return "move failed"
	}
}
