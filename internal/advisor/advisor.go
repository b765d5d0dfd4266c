// Package advisor produces recommended moves for automated
// participants. Implementations are bounded by an explicit search
// budget and are the only collaborators with non-trivial latency, so
// callers must never invoke them while holding a room lock.
package advisor

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that no recommendation could be obtained.
// The caller logs it and leaves the turn pending; it is never
// broadcast to the opposing player.
var ErrUnavailable = errors.New("advisor unavailable")

// Budget bounds one recommendation. Zero fields fall back to the
// defaults below.
type Budget struct {
	Depth    int
	MoveTime time.Duration
}

const (
	DefaultDepth    = 10
	DefaultMoveTime = 100 * time.Millisecond
)

func (b Budget) withDefaults() Budget {
	if b.Depth <= 0 {
		b.Depth = DefaultDepth
	}
	if b.MoveTime <= 0 {
		b.MoveTime = DefaultMoveTime
	}
	return b
}

// Deadline is the wall-clock cap for one recommendation, padded over
// the engine's own movetime so a healthy engine is never cut off
// mid-search.
func (b Budget) Deadline() time.Duration {
	b = b.withDefaults()
	return b.MoveTime*3 + 2*time.Second
}

// Advisor recommends one UCI move for the position reached by history.
type Advisor interface {
	Recommend(ctx context.Context, position string, history []string, budget Budget) (string, error)
	Close() error
}
