// Package archive records finished games: a Redis journal with TTL
// for recent games and an optional Postgres repository for durable
// results. Room state itself is never persisted; a process restart
// starts from an empty registry.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is the archived form of one finished game.
type Record struct {
	RoomID     string    `json:"room_id"`
	White      string    `json:"white"`
	Black      string    `json:"black"`
	MovesUCI   []string  `json:"moves_uci"`
	PGN        string    `json:"pgn"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
}

const recentKey = "archive:recent"
const recentLimit = 100

// Journal keeps finished games in Redis under a TTL and a capped
// recency list.
type Journal struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewJournal(redisURL string, ttl time.Duration) (*Journal, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required for journal")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Journal{rdb: rdb, ttl: ttl}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.rdb == nil {
		return nil
	}
	return j.rdb.Close()
}

// Record stores the game under a per-game key and pushes it onto the
// capped recency list.
func (j *Journal) Record(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	key := gameKey(rec.RoomID, rec.FinishedAt)

	pipe := j.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, j.ttl)
	pipe.LPush(ctx, recentKey, key)
	pipe.LTrim(ctx, recentKey, 0, recentLimit-1)
	pipe.Expire(ctx, recentKey, j.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

// Recent returns up to n most recently archived games, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 || n > recentLimit {
		n = recentLimit
	}
	keys, err := j.rdb.LRange(ctx, recentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		raw, err := j.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired under the list entry
		}
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func gameKey(roomID string, finishedAt time.Time) string {
	return fmt.Sprintf("archive:game:%s:%d", strings.TrimSpace(roomID), finishedAt.UnixNano())
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
