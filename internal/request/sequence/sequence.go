// Package sequence issues the per-year counters behind REQ-<year>-<sequence> ids.
package sequence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Memory is a process-local counter per year.
type Memory struct {
	counters sync.Map // year -> *atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Next(_ context.Context, year int) (int64, error) {
	c, _ := m.counters.LoadOrStore(year, new(atomic.Int64))
	return c.(*atomic.Int64).Add(1), nil
}

// Redis uses INCR so every replica draws from the same counter.
type Redis struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, prefix: "request_seq:"}
}

func (r *Redis) Next(ctx context.Context, year int) (int64, error) {
	n, err := r.client.Incr(ctx, r.prefix+strconv.Itoa(year)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment request sequence: %w", err)
	}
	return n, nil
}

// Postgres keeps the counter in request_sequences; the upsert is atomic per row.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Next(ctx context.Context, year int) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO request_sequences (year, value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = request_sequences.value + 1
		RETURNING value
	`, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment request sequence: %w", err)
	}
	return n, nil
}
