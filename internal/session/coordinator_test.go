package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mincheol-dev/chessmatch/internal/advisor"
	"github.com/mincheol-dev/chessmatch/internal/archive"
	"github.com/mincheol-dev/chessmatch/internal/room"
	"github.com/mincheol-dev/chessmatch/internal/rules"
)

type fakeSender struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeSender) Send(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSender) find(name string, pred func(Event) bool) (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.Event != name {
			continue
		}
		if pred == nil || pred(ev) {
			return ev, true
		}
	}
	return Event{}, false
}

func (f *fakeSender) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Event == name {
			n++
		}
	}
	return n
}

// lastPosition is the position carried by the most recent
// position-bearing event, the client's view of the board.
func (f *fakeSender) lastPosition() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos := ""
	for _, ev := range f.events {
		switch d := ev.Data.(type) {
		case GameStateData:
			pos = d.Position
		case MoveUpdateData:
			pos = d.Position
		}
	}
	return pos
}

func waitForEvent(t *testing.T, f *fakeSender, name string, pred func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := f.find(name, pred); ok {
			return ev
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event", name)
	return Event{}
}

type scriptAdvisor struct {
	mu    sync.Mutex
	moves []string
	fail  bool
}

func (a *scriptAdvisor) Recommend(ctx context.Context, position string, history []string, budget advisor.Budget) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail || len(a.moves) == 0 {
		return "", advisor.ErrUnavailable
	}
	mv := a.moves[0]
	a.moves = a.moves[1:]
	return mv, nil
}

func (a *scriptAdvisor) Close() error { return nil }

type fakeRecorder struct {
	mu   sync.Mutex
	recs []archive.Record
}

func (f *fakeRecorder) Record(ctx context.Context, rec archive.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func newTestCoordinator(t *testing.T, adv advisor.Advisor, opts Options, recorders ...Recorder) (*Coordinator, *room.Registry) {
	t.Helper()
	oracle := rules.NewOracle()
	registry := room.NewRegistry(oracle)
	return New(registry, oracle, adv, opts, recorders...), registry
}

func join(t *testing.T, s *Coordinator, name, roomID string) (*Conn, *fakeSender) {
	t.Helper()
	f := &fakeSender{}
	c := s.Connect(f)
	s.HandleJoin(context.Background(), c, JoinRoomData{Identifier: name, RoomID: roomID})
	return c, f
}

func TestJoinSendsSnapshotAndRoster(t *testing.T) {
	s, _ := newTestCoordinator(t, nil, Options{})

	_, fa := join(t, s, "Alice", "room1")
	ev, ok := fa.find(EvtGameState, nil)
	if !ok {
		t.Fatalf("joiner did not receive a snapshot")
	}
	state := ev.Data.(GameStateData)
	if state.Position != rules.StartingFEN || state.Turn != "white" || state.RoomID != "room1" {
		t.Fatalf("unexpected snapshot: %+v", state)
	}

	_, fb := join(t, s, "Bob", "room1")

	// The first connection hears about the newcomer plus the active
	// game state; the newcomer gets snapshot and active state.
	joined := waitForEvent(t, fa, EvtParticipantJoined, nil).Data.(ParticipantJoinedData)
	if joined.Identifier != "Bob" || len(joined.Participants) != 2 {
		t.Fatalf("unexpected roster notice: %+v", joined)
	}
	if fa.count(EvtGameState) < 2 {
		t.Fatalf("first joiner missed the active game_state broadcast")
	}
	if fb.count(EvtGameState) < 2 {
		t.Fatalf("second joiner missed the active game_state broadcast")
	}
	if _, ok := fb.find(EvtParticipantJoined, nil); ok {
		t.Fatalf("joiner should not receive its own participant_joined notice")
	}
}

func TestThirdJoinRejectedToRequesterOnly(t *testing.T) {
	s, _ := newTestCoordinator(t, nil, Options{})

	_, fa := join(t, s, "Alice", "room1")
	join(t, s, "Bob", "room1")
	_, fc := join(t, s, "Carol", "room1")

	ev, ok := fc.find(EvtError, nil)
	if !ok {
		t.Fatalf("third joiner did not receive an error")
	}
	if msg := ev.Data.(ErrorData).Message; msg != "room is full" {
		t.Fatalf("unexpected error message: %q", msg)
	}
	if _, ok := fa.find(EvtError, nil); ok {
		t.Fatalf("join failure leaked to other connections")
	}
}

func TestMoveBroadcastAndReplay(t *testing.T) {
	s, _ := newTestCoordinator(t, nil, Options{})

	ca, fa := join(t, s, "Alice", "room1")
	cb, fb := join(t, s, "Bob", "room1")

	s.HandleMove(context.Background(), ca, PlayerMoveData{
		RoomID:           "room1",
		ExpectedPosition: rules.StartingFEN,
		Move:             "e2e4",
	})

	for _, f := range []*fakeSender{fa, fb} {
		ev := waitForEvent(t, f, EvtMoveUpdate, nil)
		upd := ev.Data.(MoveUpdateData)
		if upd.Move != "e2e4" || upd.Identifier != "Alice" {
			t.Fatalf("unexpected move_update: %+v", upd)
		}
		if upd.Position == rules.StartingFEN {
			t.Fatalf("move_update carries the stale position")
		}
	}

	// Bob replays against the consumed starting position.
	s.HandleMove(context.Background(), cb, PlayerMoveData{
		RoomID:           "room1",
		ExpectedPosition: rules.StartingFEN,
		Move:             "e7e5",
	})
	ev, ok := fb.find(EvtError, nil)
	if !ok {
		t.Fatalf("replay did not produce an error for the sender")
	}
	if msg := ev.Data.(ErrorData).Message; msg != "position is out of date" {
		t.Fatalf("unexpected replay error: %q", msg)
	}
	if _, ok := fa.find(EvtError, nil); ok {
		t.Fatalf("replay error leaked to the opponent")
	}
	if n := fb.count(EvtMoveUpdate); n != 1 {
		t.Fatalf("replay must not produce a move_update, got %d", n)
	}
}

func TestMoveRequiresJoinedRoom(t *testing.T) {
	s, _ := newTestCoordinator(t, nil, Options{})

	f := &fakeSender{}
	c := s.Connect(f)
	s.HandleMove(context.Background(), c, PlayerMoveData{RoomID: "room1", Move: "e2e4"})
	ev, ok := f.find(EvtError, nil)
	if !ok {
		t.Fatalf("expected an error for an unjoined move")
	}
	if msg := ev.Data.(ErrorData).Message; msg != ErrNotYourRoom.Error() {
		t.Fatalf("unexpected error: %q", msg)
	}

	// Joined to a different room is equally rejected.
	ca, fa := join(t, s, "Alice", "room1")
	s.HandleMove(context.Background(), ca, PlayerMoveData{RoomID: "room2", Move: "e2e4"})
	if _, ok := fa.find(EvtError, nil); !ok {
		t.Fatalf("expected an error for a foreign-room move")
	}
}

func TestDisconnectNotifiesAndEmptiesRoom(t *testing.T) {
	s, registry := newTestCoordinator(t, nil, Options{})

	ca, fa := join(t, s, "Alice", "room1")
	cb, _ := join(t, s, "Bob", "room1")

	s.HandleDisconnect(cb)
	waitForEvent(t, fa, EvtOpponentDisconnected, nil)

	if len(registry.ListWaiting()) != 1 {
		t.Fatalf("room with one remaining participant should be listed")
	}

	s.HandleDisconnect(ca)
	s.HandleDisconnect(ca) // idempotent

	if len(registry.ListWaiting()) != 0 {
		t.Fatalf("emptied room still listed")
	}
	if _, ok := registry.Get("room1"); ok {
		t.Fatalf("emptied room still registered")
	}

	// A fresh join to the same identifier starts over.
	_, fc := join(t, s, "Carol", "room1")
	state := waitForEvent(t, fc, EvtGameState, nil).Data.(GameStateData)
	if state.Position != rules.StartingFEN {
		t.Fatalf("fresh room not at starting position: %+v", state)
	}
}

func TestAutomatedParticipantAnswersMove(t *testing.T) {
	adv := &scriptAdvisor{moves: []string{"e7e5"}}
	s, _ := newTestCoordinator(t, adv, Options{AutomatedNames: []string{"AutoBot"}})

	ca, fa := join(t, s, "Alice", "room1")
	join(t, s, "autobot", "room1") // matching is case-insensitive

	s.HandleMove(context.Background(), ca, PlayerMoveData{
		RoomID:           "room1",
		ExpectedPosition: rules.StartingFEN,
		Move:             "e2e4",
	})

	ev := waitForEvent(t, fa, EvtMoveUpdate, func(ev Event) bool {
		return ev.Data.(MoveUpdateData).Identifier == "autobot"
	})
	if upd := ev.Data.(MoveUpdateData); upd.Move != "e7e5" {
		t.Fatalf("unexpected automated move: %+v", upd)
	}
}

func TestAutomatedParticipantOpensAsWhite(t *testing.T) {
	adv := &scriptAdvisor{moves: []string{"e2e4"}}
	s, _ := newTestCoordinator(t, adv, Options{AutomatedNames: []string{"AutoBot"}})

	// The automated seat joins first and therefore plays White; its
	// move must arrive without any player_move event.
	join(t, s, "AutoBot", "room1")
	_, fb := join(t, s, "Bob", "room1")

	ev := waitForEvent(t, fb, EvtMoveUpdate, nil)
	if upd := ev.Data.(MoveUpdateData); upd.Move != "e2e4" || upd.Identifier != "AutoBot" {
		t.Fatalf("unexpected opening move: %+v", upd)
	}
}

func TestAdvisorUnavailableLeavesTurnPending(t *testing.T) {
	adv := &scriptAdvisor{fail: true}
	s, registry := newTestCoordinator(t, adv, Options{AutomatedNames: []string{"AutoBot"}})

	join(t, s, "AutoBot", "room1")
	_, fb := join(t, s, "Bob", "room1")

	time.Sleep(150 * time.Millisecond)
	if n := fb.count(EvtMoveUpdate); n != 0 {
		t.Fatalf("expected no move while advisor is down, got %d updates", n)
	}
	if _, ok := fb.find(EvtError, nil); ok {
		t.Fatalf("advisor failure must not surface as a client error")
	}
	r, _ := registry.Get("room1")
	if snap := r.Snapshot(); snap.Ply != 0 {
		t.Fatalf("advisor failure mutated the room: %+v", snap)
	}
}

func TestAdvisorFallbackPlaysLegalMove(t *testing.T) {
	adv := &scriptAdvisor{fail: true}
	s, _ := newTestCoordinator(t, adv, Options{
		AutomatedNames: []string{"AutoBot"},
		FallbackLegal:  true,
	})

	join(t, s, "AutoBot", "room1")
	_, fb := join(t, s, "Bob", "room1")

	ev := waitForEvent(t, fb, EvtMoveUpdate, nil)
	if upd := ev.Data.(MoveUpdateData); upd.Identifier != "AutoBot" || upd.Move == "" {
		t.Fatalf("unexpected fallback move: %+v", upd)
	}
}

func TestLateJoinerSeesCurrentPosition(t *testing.T) {
	// A joiner registering while the opponent's first move lands must
	// end up knowing the post-move position, whichever side wins the
	// race; a snapshot older than a broadcast it already received would
	// leave it permanently stale.
	for i := 0; i < 25; i++ {
		s, registry := newTestCoordinator(t, nil, Options{})
		ca, _ := join(t, s, "Alice", "room1")

		bob := &fakeSender{}
		cb := s.Connect(bob)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.HandleJoin(context.Background(), cb, JoinRoomData{Identifier: "Bob", RoomID: "room1"})
		}()
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(3 * time.Second)
			for time.Now().Before(deadline) {
				s.HandleMove(context.Background(), ca, PlayerMoveData{
					RoomID:           "room1",
					ExpectedPosition: rules.StartingFEN,
					Move:             "e2e4",
				})
				if r, ok := registry.Get("room1"); ok && r.Snapshot().Ply == 1 {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
		wg.Wait()

		r, ok := registry.Get("room1")
		if !ok {
			t.Fatalf("iteration %d: room vanished", i)
		}
		want := r.Snapshot()
		if want.Ply != 1 {
			t.Fatalf("iteration %d: move never landed", i)
		}
		if got := bob.lastPosition(); got != want.Position {
			t.Fatalf("iteration %d: joiner's view stuck at %q, room at %q", i, got, want.Position)
		}

		s.HandleDisconnect(ca)
		s.HandleDisconnect(cb)
	}
}

func TestFinishedGameRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	s, _ := newTestCoordinator(t, nil, Options{}, rec)

	ca, fa := join(t, s, "Alice", "room1")
	cb, _ := join(t, s, "Bob", "room1")

	pos := rules.StartingFEN
	for _, m := range []struct {
		conn *Conn
		move string
	}{
		{ca, "f2f3"},
		{cb, "e7e5"},
		{ca, "g2g4"},
		{cb, "d8h4"},
	} {
		s.HandleMove(context.Background(), m.conn, PlayerMoveData{
			RoomID:           "room1",
			ExpectedPosition: pos,
			Move:             m.move,
		})
		ev := waitForEvent(t, fa, EvtMoveUpdate, func(ev Event) bool {
			return ev.Data.(MoveUpdateData).Move == m.move
		})
		pos = ev.Data.(MoveUpdateData).Position
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.recs)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("finished game never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	got := rec.recs[0]
	if got.RoomID != "room1" || got.White != "Alice" || got.Black != "Bob" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Status != rules.StatusCheckmate || len(got.MovesUCI) != 4 || got.PGN == "" {
		t.Fatalf("unexpected record payload: %+v", got)
	}
}

func TestRecordKeepsNamesAfterDisconnect(t *testing.T) {
	rec := &fakeRecorder{}
	s, _ := newTestCoordinator(t, nil, Options{}, rec)

	ca, fa := join(t, s, "Alice", "room1")
	cb, _ := join(t, s, "Bob", "room1")

	pos := rules.StartingFEN
	for _, m := range []struct {
		conn *Conn
		move string
	}{
		{ca, "f2f3"},
		{cb, "e7e5"},
		{ca, "g2g4"},
		{cb, "d8h4"},
	} {
		s.HandleMove(context.Background(), m.conn, PlayerMoveData{
			RoomID:           "room1",
			ExpectedPosition: pos,
			Move:             m.move,
		})
		ev := waitForEvent(t, fa, EvtMoveUpdate, func(ev Event) bool {
			return ev.Data.(MoveUpdateData).Move == m.move
		})
		pos = ev.Data.(MoveUpdateData).Position
	}

	// Both seats empty out before the archive write is observed; the
	// record must still name them.
	s.HandleDisconnect(ca)
	s.HandleDisconnect(cb)

	deadline := time.Now().Add(3 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.recs)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("finished game never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	got := rec.recs[0]
	if got.White != "Alice" || got.Black != "Bob" {
		t.Fatalf("seat names lost on disconnect: %+v", got)
	}
}
