package advisor

import (
	"context"
	"fmt"

	"github.com/mincheol-dev/chessmatch/internal/advisor/uci"
)

// Engine is the local advisor: a pool of UCI engine subprocesses.
type Engine struct {
	pool *uci.Pool
}

func NewEngine(binaryPath string, capacity int) (*Engine, error) {
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: binaryPath,
		Options:    uci.Options{Threads: 1, HashMB: 64},
		Capacity:   capacity,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{pool: pool}, nil
}

// Recommend searches the position reached by history under the budget
// and returns the engine's best move. The engine always plays its best
// line; there is no randomization.
func (e *Engine) Recommend(ctx context.Context, position string, history []string, budget Budget) (string, error) {
	budget = budget.withDefaults()

	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: acquire: %v", ErrUnavailable, err)
	}
	var opErr error
	defer func() { e.pool.Release(session, opErr) }()

	if err := session.NewGame(ctx); err != nil {
		opErr = err
		return "", fmt.Errorf("%w: new game: %v", ErrUnavailable, err)
	}

	best, err := session.Search(ctx, uci.SearchRequest{
		Moves: history,
		Limits: uci.Limits{
			Depth:          budget.Depth,
			MoveTimeMillis: int(budget.MoveTime.Milliseconds()),
		},
	})
	if err != nil {
		opErr = err
		return "", fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	return best, nil
}

func (e *Engine) Close() error { return e.pool.Close() }
