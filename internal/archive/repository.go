package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository writes finished games to Postgres. It is optional; the
// server runs without it when no database URL is configured.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record inserts one finished game. Re-recording the same room at the
// same instant upserts rather than duplicating.
func (r *Repository) Record(ctx context.Context, rec Record) error {
	if r == nil || r.db == nil {
		return nil
	}
	movesRaw, _ := json.Marshal(rec.MovesUCI)

	q := `INSERT INTO finished_games (
	    room_id, white_name, black_name, moves_uci, pgn, status, finished_at
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7)
	  ON CONFLICT (room_id, finished_at) DO UPDATE SET
	    white_name=EXCLUDED.white_name,
	    black_name=EXCLUDED.black_name,
	    moves_uci=EXCLUDED.moves_uci,
	    pgn=EXCLUDED.pgn,
	    status=EXCLUDED.status`

	_, err := r.db.ExecContext(ctx, q,
		rec.RoomID,
		rec.White, rec.Black,
		string(movesRaw), rec.PGN, rec.Status,
		rec.FinishedAt,
	)
	return err
}
