package room

import (
	"sort"
	"sync"

	"github.com/mincheol-dev/chessmatch/internal/rules"
)

// Registry maps room identifiers to live rooms. It is an explicit
// instance handed to the session coordinator, not a package global, so
// tests can run isolated registries side by side.
type Registry struct {
	oracle *rules.Oracle

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry builds a registry whose rooms consult the given oracle.
func NewRegistry(oracle *rules.Oracle) *Registry {
	return &Registry{
		oracle: oracle,
		rooms:  make(map[string]*Room),
	}
}

// GetOrCreate returns the room for id, creating it on first use.
// Creation is race-free: concurrent first joins to the same unknown
// identifier observe the same instance.
func (g *Registry) GetOrCreate(id string) *Room {
	g.mu.RLock()
	r, ok := g.rooms[id]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[id]; ok {
		return r
	}
	r = New(id, g.oracle)
	g.rooms[id] = r
	return r
}

func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Remove drops the entry for id if it still maps to r and r is empty.
// The re-check closes the race where a fresh join lands between the
// caller observing an empty room and the removal.
func (g *Registry) Remove(id string, r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.rooms[id]
	if !ok || cur != r {
		return
	}
	if cur.ParticipantCount() != 0 {
		return
	}
	delete(g.rooms, id)
}

// ListWaiting returns rooms with exactly one occupant, sorted by room
// identifier for deterministic output.
func (g *Registry) ListWaiting() []WaitingRoom {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]WaitingRoom, 0)
	for id, r := range g.rooms {
		snap := r.Snapshot()
		if len(snap.Participants) != 1 {
			continue
		}
		out = append(out, WaitingRoom{
			RoomID:           id,
			Participants:     snap.Participants,
			ParticipantCount: 1,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
