package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// PostgresLedgerRepository stores the results ledger in the results table
// (see migrations/). It never reports ErrLedgerAbsent: an emptied table is an
// empty ledger.
type PostgresLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLedgerRepository creates a new PostgresLedgerRepository.
func NewPostgresLedgerRepository(pool *pgxpool.Pool) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{pool: pool}
}

// Append inserts one completed attempt.
func (r *PostgresLedgerRepository) Append(ctx context.Context, rec model.ResultRecord) error {
	recordedAt, err := time.ParseInLocation(model.LedgerTimeLayout, rec.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO results (recorded_at, name, roll, score)
		 VALUES ($1, $2, $3, $4)`,
		recordedAt, rec.Name, rec.Roll, rec.Score,
	)
	return err
}

// ReadAll returns every row in insertion order.
func (r *PostgresLedgerRepository) ReadAll(ctx context.Context) ([]model.ResultRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT recorded_at, name, roll, score
		 FROM results
		 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.ResultRecord{}
	for rows.Next() {
		var (
			at  time.Time
			rec model.ResultRecord
		)
		if err := rows.Scan(&at, &rec.Name, &rec.Roll, &rec.Score); err != nil {
			return nil, err
		}
		rec.Timestamp = at.Format(model.LedgerTimeLayout)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear deletes every row.
func (r *PostgresLedgerRepository) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM results`)
	return err
}
