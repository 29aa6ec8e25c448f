package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adfinitum/storefront/internal/checkout/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Journal persists confirmed payment references. Rows in
// 'paid_unplaced' are payments whose order never got accepted; support
// works that list down.
type Journal struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewJournal(log *slog.Logger, pool *pgxpool.Pool) *Journal {
	return &Journal{log: log, pool: pool}
}

func (j *Journal) EnsureSchema(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payment_journal (
			order_ref       TEXT PRIMARY KEY,
			method          TEXT NOT NULL,
			transaction_ref TEXT NOT NULL,
			amount_cents    BIGINT NOT NULL,
			status          TEXT NOT NULL,
			order_id        TEXT,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// RecordPaid upserts on order_ref so a retried submission refreshes the
// same row instead of duplicating it.
func (j *Journal) RecordPaid(ctx context.Context, rec domain.PaymentRecord) error {
	_, err := j.pool.Exec(ctx, `INSERT INTO payment_journal (order_ref, method, transaction_ref, amount_cents, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (order_ref) DO UPDATE SET method=$2, transaction_ref=$3, amount_cents=$4, status=$5, updated_at=$7`,
		rec.OrderRef, rec.Method, rec.TransactionRef, rec.Amount, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (j *Journal) MarkPlaced(ctx context.Context, orderRef, orderID string) error {
	ct, err := j.pool.Exec(ctx, `UPDATE payment_journal SET status=$2, order_id=$3, updated_at=$4 WHERE order_ref=$1`,
		orderRef, domain.RecordPlaced, orderID, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no journal row for order ref " + orderRef)
	}
	return nil
}

// Unplaced lists paid payments whose order creation never succeeded,
// oldest first.
func (j *Journal) Unplaced(ctx context.Context, limit int) ([]domain.PaymentRecord, error) {
	rows, err := j.pool.Query(ctx, `SELECT order_ref, method, transaction_ref, amount_cents, status, created_at, updated_at
			FROM payment_journal
			WHERE status = $1
			ORDER BY created_at
			LIMIT $2`, domain.RecordPaidUnplaced, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PaymentRecord
	for rows.Next() {
		var rec domain.PaymentRecord
		if err := rows.Scan(&rec.OrderRef, &rec.Method, &rec.TransactionRef, &rec.Amount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
