package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres appends envelopes to the vrf_events table.
type Postgres struct {
	db *sql.DB
}

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgres returns a sink writing through db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Write implements Sink. The batch is inserted in one transaction.
func (p *Postgres) Write(ctx context.Context, envs []Envelope) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, env := range envs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vrf_events (id, seq, name, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, env.ID.String(), int64(env.Seq), env.Name, []byte(env.Payload), env.Time)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert event %d: %w", env.Seq, err)
		}
	}
	return tx.Commit()
}

// LastSeq returns the highest stored sequence number, 0 for an empty table.
func (p *Postgres) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := p.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM vrf_events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

// Recent returns the latest limit envelopes whose name is in names, newest
// first. An empty names slice matches every event.
func (p *Postgres) Recent(ctx context.Context, names []string, limit int) ([]Envelope, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, seq, name, payload, created_at
		FROM vrf_events
		WHERE cardinality($1::text[]) = 0 OR name = ANY($1)
		ORDER BY seq DESC
		LIMIT $2
	`, pq.Array(names), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var (
			env     Envelope
			id      string
			seq     int64
			payload []byte
		)
		if err := rows.Scan(&id, &seq, &env.Name, &payload, &env.Time); err != nil {
			return nil, err
		}
		env.Payload = payload
		if env.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("event id: %w", err)
		}
		env.Seq = uint64(seq)
		out = append(out, env)
	}
	return out, rows.Err()
}
