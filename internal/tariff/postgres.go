package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RateRowsSchema is the table the Postgres source reads. Rows are mirrored
// from the spreadsheet store by an external sync job.
const RateRowsSchema = `
CREATE TABLE IF NOT EXISTS rate_rows (
    source_id    text        NOT NULL,
    table_id     text        NOT NULL,
    record_id    text        NOT NULL,
    created_time timestamptz,
    fields       jsonb       NOT NULL DEFAULT '{}'::jsonb,
    position     integer     NOT NULL DEFAULT 0,
    PRIMARY KEY (source_id, table_id, record_id)
)`

// Postgres reads tariff rows mirrored into the rate_rows table.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{db: db} }

func (p *Postgres) FetchRawRows(ctx context.Context, sourceID, tableID string) ([]RawRow, error) {
	rows, err := p.db.Query(ctx, `
        SELECT record_id, created_time, fields
        FROM rate_rows
        WHERE source_id = $1 AND table_id = $2
        ORDER BY position, record_id`, sourceID, tableID)
	if err != nil {
		return nil, fmt.Errorf("query rate_rows: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RawRow, error) {
		var (
			id      string
			created *time.Time
			raw     []byte
		)
		if err := row.Scan(&id, &created, &raw); err != nil {
			return RawRow{}, err
		}
		r := RawRow{ID: id}
		if created != nil {
			r.CreatedTime = created.UTC().Format(time.RFC3339)
		}
		if err := json.Unmarshal(raw, &r.Fields); err != nil {
			return RawRow{}, fmt.Errorf("record %s: %w", id, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rate_rows: %w", err)
	}
	return out, nil
}
