package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Remote queries an HTTP advisor service instead of a local engine.
// The service receives the position, the move history, and the budget,
// and answers with a single UCI move.
type Remote struct {
	baseURL string
	http    *fasthttp.Client
}

type RemoteOption func(*Remote)

func WithMaxConnsPerHost(n int) RemoteOption {
	return func(r *Remote) { r.http.MaxConnsPerHost = n }
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 16,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type recommendRequest struct {
	Position   string   `json:"position"`
	Moves      []string `json:"moves"`
	Depth      int      `json:"depth"`
	MoveTimeMS int      `json:"movetime_ms"`
}

type recommendResponse struct {
	Move string `json:"move"`
}

func (r *Remote) Recommend(ctx context.Context, position string, history []string, budget Budget) (string, error) {
	budget = budget.withDefaults()

	payload, err := json.Marshal(recommendRequest{
		Position:   position,
		Moves:      history,
		Depth:      budget.Depth,
		MoveTimeMS: int(budget.MoveTime.Milliseconds()),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(r.baseURL + "/recommend")
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	timeout := budget.Deadline()
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}
	if timeout <= 0 {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, context.DeadlineExceeded)
	}

	if err := r.http.DoTimeout(req, resp, timeout); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}

	var out recommendResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	move := strings.TrimSpace(out.Move)
	if move == "" {
		return "", fmt.Errorf("%w: empty move", ErrUnavailable)
	}
	return move, nil
}

func (r *Remote) Close() error { return nil }
