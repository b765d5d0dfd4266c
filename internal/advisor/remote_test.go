package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBudgetDefaults(t *testing.T) {
	b := Budget{}.withDefaults()
	if b.Depth != DefaultDepth || b.MoveTime != DefaultMoveTime {
		t.Fatalf("unexpected defaults: %+v", b)
	}

	b = Budget{Depth: 15, MoveTime: time.Second}.withDefaults()
	if b.Depth != 15 || b.MoveTime != time.Second {
		t.Fatalf("explicit values overwritten: %+v", b)
	}

	if d := (Budget{MoveTime: time.Second}).Deadline(); d != 5*time.Second {
		t.Fatalf("unexpected deadline: %v", d)
	}
}

func TestRemoteRecommend(t *testing.T) {
	var got recommendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/recommend" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(recommendResponse{Move: "e2e4"})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL + "/")
	move, err := r.Recommend(context.Background(), "startfen", []string{"d2d4"}, Budget{Depth: 12, MoveTime: 250 * time.Millisecond})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if move != "e2e4" {
		t.Fatalf("unexpected move: %q", move)
	}
	if got.Position != "startfen" || len(got.Moves) != 1 || got.Moves[0] != "d2d4" {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if got.Depth != 12 || got.MoveTimeMS != 250 {
		t.Fatalf("budget not forwarded: %+v", got)
	}
}

func TestRemoteRecommendFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"empty move", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(recommendResponse{Move: "  "})
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			r := NewRemote(srv.URL)
			_, err := r.Recommend(context.Background(), "fen", nil, Budget{})
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestRemoteRecommendExpiredContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(recommendResponse{Move: "e2e4"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	r := NewRemote(srv.URL)
	if _, err := r.Recommend(ctx, "fen", nil, Budget{}); err == nil {
		t.Fatalf("expected an error for an expired context")
	}
}
