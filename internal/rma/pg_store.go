package rma

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Create(ctx context.Context, r *RMA) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO rmas(id, rma_id, transaction_id, product_id, unit_id, serial_number,
		                 customer_name, reason, condition, status, process, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)`,
		r.ID, r.RMAID, r.TransactionID, r.ProductID, r.UnitID, r.SerialNumber,
		r.CustomerName, r.Reason, r.Condition, string(r.Status), string(r.Process), r.CreatedAt)
	return err
}

const rmaCols = `id, rma_id, transaction_id, product_id, unit_id, serial_number,
	customer_name, reason, condition, status, process, created_at, updated_at`

func scanRMA(row pgx.Row) (RMA, error) {
	var r RMA
	var status, process string
	err := row.Scan(&r.ID, &r.RMAID, &r.TransactionID, &r.ProductID, &r.UnitID, &r.SerialNumber,
		&r.CustomerName, &r.Reason, &r.Condition, &status, &process, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RMA{}, ErrNotFound
	}
	if err != nil {
		return RMA{}, err
	}
	r.Status = Status(status)
	r.Process = Process(process)
	return r, nil
}

func (s *PGStore) Get(ctx context.Context, rmaID string) (RMA, error) {
	return scanRMA(s.DB.QueryRow(ctx, `SELECT `+rmaCols+` FROM rmas WHERE rma_id=$1`, rmaID))
}

func (s *PGStore) List(ctx context.Context) ([]RMA, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+rmaCols+` FROM rmas ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RMA
	for rows.Next() {
		r, err := scanRMA(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Transition(ctx context.Context, rmaID string, from, to Status, process Process) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE rmas SET status=$3, process=$4, updated_at=now()
		WHERE rma_id=$1 AND status=$2`,
		rmaID, string(from), string(to), string(process))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		var cur string
		if gerr := s.DB.QueryRow(ctx, `SELECT status FROM rmas WHERE rma_id=$1`, rmaID).Scan(&cur); gerr != nil {
			return ErrNotFound
		}
		return fmt.Errorf("%w: status is %s", ErrInvalidState, cur)
	}
	return nil
}

func (s *PGStore) CreateRefund(ctx context.Context, r *Refund) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO refunds(id, refund_id, rma_id, transaction_id, product_name,
		                    serial_number, refund_amount, refund_method, reference_number, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.RefundID, r.RMAID, r.TransactionID, r.ProductName,
		r.SerialNumber, r.Amount.String(), r.Method, r.ReferenceNumber, r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// refunds.rma_id is unique: the table itself enforces at most one
		// refund per RMA
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrRefundExists
		}
		return err
	}
	return nil
}

func (s *PGStore) ListRefunds(ctx context.Context) ([]Refund, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, refund_id, rma_id, transaction_id, product_name,
		       serial_number, refund_amount::text, refund_method, reference_number, created_at
		FROM refunds ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Refund
	for rows.Next() {
		var r Refund
		var amount string
		if err := rows.Scan(&r.ID, &r.RefundID, &r.RMAID, &r.TransactionID, &r.ProductName,
			&r.SerialNumber, &amount, &r.Method, &r.ReferenceNumber, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
