package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gameshowlab/podium/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_seats (
    code      text NOT NULL,
    seat_id   text NOT NULL,
    name      text NOT NULL,
    token     text NOT NULL,
    connected boolean NOT NULL DEFAULT false,
    PRIMARY KEY (code, seat_id)
);

CREATE TABLE IF NOT EXISTS session_current (
    id   integer PRIMARY KEY CHECK (id = 1),
    code text NOT NULL
);
`

// PostgresStore persists session state in Postgres. All statements are scoped
// by session code so independent sessions never contend on rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) CurrentCode(ctx context.Context) (string, error) {
	var code string
	err := p.pool.QueryRow(ctx, `SELECT code FROM session_current WHERE id = 1`).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read current code: %w", err)
	}
	if code == "" {
		return "", ErrNotFound
	}
	return code, nil
}

func (p *PostgresStore) SetCurrentCode(ctx context.Context, code string) error {
	_, err := p.pool.Exec(ctx, `
        INSERT INTO session_current (id, code) VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code`, code)
	if err != nil {
		return fmt.Errorf("write current code: %w", err)
	}
	return nil
}

func (p *PostgresStore) Seat(ctx context.Context, code string, seat session.SeatID) (SeatRecord, error) {
	var rec SeatRecord
	err := p.pool.QueryRow(ctx, `
        SELECT name, token, connected FROM session_seats
        WHERE code = $1 AND seat_id = $2`, code, string(seat)).
		Scan(&rec.Name, &rec.Token, &rec.Connected)
	if errors.Is(err, pgx.ErrNoRows) {
		return SeatRecord{}, ErrNotFound
	}
	if err != nil {
		return SeatRecord{}, fmt.Errorf("read seat %s/%s: %w", code, seat, err)
	}
	return rec, nil
}

func (p *PostgresStore) PutSeat(ctx context.Context, code string, seat session.SeatID, rec SeatRecord) error {
	_, err := p.pool.Exec(ctx, `
        INSERT INTO session_seats (code, seat_id, name, token, connected)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (code, seat_id) DO UPDATE
        SET name = EXCLUDED.name, token = EXCLUDED.token, connected = EXCLUDED.connected`,
		code, string(seat), rec.Name, rec.Token, rec.Connected)
	if err != nil {
		return fmt.Errorf("write seat %s/%s: %w", code, seat, err)
	}
	return nil
}

func (p *PostgresStore) SessionSeats(ctx context.Context, code string) (map[session.SeatID]SeatRecord, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT seat_id, name, token, connected FROM session_seats WHERE code = $1`, code)
	if err != nil {
		return nil, fmt.Errorf("read session seats %s: %w", code, err)
	}
	defer rows.Close()

	out := make(map[session.SeatID]SeatRecord)
	for rows.Next() {
		var id string
		var rec SeatRecord
		if err := rows.Scan(&id, &rec.Name, &rec.Token, &rec.Connected); err != nil {
			return nil, fmt.Errorf("scan seat row: %w", err)
		}
		out[session.SeatID(id)] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seat rows: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) ResetSession(ctx context.Context, code string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM session_seats WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("reset session %s: %w", code, err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
