package transaction

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

func (s *PGStore) Create(ctx context.Context, t *Transaction) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var extID any
	if t.ExternalID != "" {
		extID = t.ExternalID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions(id, transaction_id, external_id, customer_id, total_price,
		                         vat, discount, amount_paid, change_due, payment_method, status, transaction_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.TransactionID, extID, t.CustomerID,
		t.TotalPrice.String(), t.VAT.String(), t.Discount.String(),
		t.AmountPaid.String(), t.Change.String(),
		t.PaymentMethod, string(t.Status), t.Date)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicate
		}
		return err
	}
	for _, l := range t.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO transaction_lines(transaction_id, product_id, product_name, quantity, unit_price, serial_numbers)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			t.ID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice.String(), l.SerialNumbers)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM transaction_lines WHERE transaction_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const txnCols = `id, transaction_id, COALESCE(external_id,''), customer_id, total_price::text,
	vat::text, discount::text, amount_paid::text, change_due::text, payment_method, status, transaction_date`

func (s *PGStore) scanTxn(ctx context.Context, row pgx.Row) (Transaction, error) {
	var t Transaction
	var total, vat, disc, paid, change, status string
	err := row.Scan(&t.ID, &t.TransactionID, &t.ExternalID, &t.CustomerID,
		&total, &vat, &disc, &paid, &change, &t.PaymentMethod, &status, &t.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	t.Status = Status(status)
	cols := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{total, &t.TotalPrice}, {vat, &t.VAT}, {disc, &t.Discount},
		{paid, &t.AmountPaid}, {change, &t.Change},
	}
	for _, c := range cols {
		d, err := decimal.NewFromString(c.raw)
		if err != nil {
			return Transaction{}, fmt.Errorf("decimal column: %w", err)
		}
		*c.dst = d
	}
	if t.Lines, err = s.lines(ctx, t.ID); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (s *PGStore) lines(ctx context.Context, id string) ([]Line, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product_id, product_name, quantity, unit_price::text, serial_numbers
		FROM transaction_lines WHERE transaction_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var l Line
		var price string
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &price, &l.SerialNumbers); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (Transaction, error) {
	return s.scanTxn(ctx, s.DB.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE id=$1`, id))
}

func (s *PGStore) GetByTransactionID(ctx context.Context, txnID string) (Transaction, error) {
	return s.scanTxn(ctx, s.DB.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE transaction_id=$1`, txnID))
}

func (s *PGStore) GetByExternalID(ctx context.Context, externalID string) (Transaction, error) {
	if externalID == "" {
		return Transaction{}, ErrNotFound
	}
	return s.scanTxn(ctx, s.DB.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE external_id=$1`, externalID))
}

func (s *PGStore) List(ctx context.Context) ([]Transaction, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM transactions ORDER BY transaction_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *PGStore) Finalize(ctx context.Context, id string, paid, change decimal.Decimal, method string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE transactions SET status='Completed', amount_paid=$2, change_due=$3, payment_method=$4
		WHERE id=$1 AND status='Reserved'`,
		id, paid.String(), change.String(), method)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return s.stateOrNotFound(ctx, id)
	}
	return nil
}

func (s *PGStore) MarkRefunded(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE transactions SET status='Refunded' WHERE id=$1 AND status='Completed'`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return s.stateOrNotFound(ctx, id)
	}
	return nil
}

func (s *PGStore) stateOrNotFound(ctx context.Context, id string) error {
	var cur string
	if err := s.DB.QueryRow(ctx, `SELECT status FROM transactions WHERE id=$1`, id).Scan(&cur); err != nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: status is %s", ErrInvalidState, cur)
}

func (s *PGStore) ReplaceSerial(ctx context.Context, id, oldSerial, newSerial string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE transaction_lines SET serial_numbers = array_replace(serial_numbers, $2, $3)
		WHERE transaction_id=$1 AND $2 = ANY(serial_numbers)`, id, oldSerial, newSerial)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpsertCustomer(ctx context.Context, c Customer) (string, error) {
	// match by phone first, then email
	var id string
	err := s.DB.QueryRow(ctx, `
		SELECT id FROM customers
		WHERE (phone <> '' AND phone=$1) OR (email <> '' AND email=$2)
		LIMIT 1`, c.Phone, c.Email).Scan(&id)
	if err == nil {
		_, err = s.DB.Exec(ctx, `UPDATE customers SET name=$2 WHERE id=$1`, id, c.Name)
		return id, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = s.DB.QueryRow(ctx, `
		INSERT INTO customers(id, name, phone, email)
		VALUES (gen_random_uuid(), $1, $2, $3) RETURNING id`,
		c.Name, c.Phone, c.Email).Scan(&id)
	return id, err
}
