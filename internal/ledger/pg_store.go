package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore implements Store on Postgres. Exclusivity on Unit.status comes
// from compare-and-swap updates (WHERE status = expected) inside a single
// transaction per operation, so two concurrent checkouts for the last unit
// cannot both succeed.
type PGStore struct {
	DB     *pgxpool.Pool
	Events Publisher
}

const unitCols = `id, product_id, serial_number, status, reserve_expires_at, created_at, updated_at`

func scanUnit(row pgx.Row) (Unit, error) {
	var u Unit
	var status string
	err := row.Scan(&u.ID, &u.ProductID, &u.SerialNumber, &status, &u.ReserveExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return Unit{}, err
	}
	u.Status = Status(status)
	return u, nil
}

func (s *PGStore) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, category, sub_category, selling_price::text, buying_price::text,
		       low_stock_threshold, warranty_term, sales, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		units, err := s.listUnits(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Units = units
	}
	return out, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var selling, buying string
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.SubCategory, &selling, &buying,
		&p.LowStockThreshold, &p.WarrantyTerm, &p.Sales, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if p.SellingPrice, err = decimal.NewFromString(selling); err != nil {
		return Product{}, fmt.Errorf("selling_price: %w", err)
	}
	if p.BuyingPrice, err = decimal.NewFromString(buying); err != nil {
		return Product{}, fmt.Errorf("buying_price: %w", err)
	}
	return p, nil
}

func (s *PGStore) GetProduct(ctx context.Context, productID string) (Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `
		SELECT id, name, category, sub_category, selling_price::text, buying_price::text,
		       low_stock_threshold, warranty_term, sales, created_at, updated_at
		FROM products WHERE id=$1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	if p.Units, err = s.listUnits(ctx, productID); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PGStore) listUnits(ctx context.Context, productID string) ([]Unit, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+unitCols+` FROM units
		WHERE product_id=$1 ORDER BY created_at, serial_number`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PGStore) GetUnit(ctx context.Context, unitID string) (Unit, error) {
	u, err := scanUnit(s.DB.QueryRow(ctx, `SELECT `+unitCols+` FROM units WHERE id=$1`, unitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, ErrUnitNotFound
	}
	return u, err
}

func (s *PGStore) GetUnitBySerial(ctx context.Context, productID, serial string) (Unit, error) {
	u, err := scanUnit(s.DB.QueryRow(ctx, `SELECT `+unitCols+` FROM units
		WHERE product_id=$1 AND serial_number=$2`, productID, serial))
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, ErrUnitNotFound
	}
	return u, err
}

func (s *PGStore) ListAvailable(ctx context.Context, productID string) ([]Unit, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+unitCols+` FROM units
		WHERE product_id=$1 AND status='in_stock'
		ORDER BY created_at, serial_number`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PGStore) Reserve(ctx context.Context, unitID string, expiresAt time.Time) (Unit, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE units SET status='reserved', reserve_expires_at=$2, updated_at=now()
		WHERE id=$1 AND status='in_stock'
		RETURNING `+unitCols, unitID, expiresAt)
	u, err := scanUnit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// either missing or not in_stock; disambiguate for the caller
		if _, gerr := s.GetUnit(ctx, unitID); errors.Is(gerr, ErrUnitNotFound) {
			return Unit{}, ErrUnitNotFound
		}
		return Unit{}, ErrAlreadyReserved
	}
	if err != nil {
		return Unit{}, err
	}
	s.publish(ctx, StatusChange{
		ProductID: u.ProductID, UnitID: u.ID, SerialNumber: u.SerialNumber,
		From: StatusInStock, To: StatusReserved, At: u.UpdatedAt,
	})
	return u, nil
}

func (s *PGStore) Release(ctx context.Context, unitIDs []string) error {
	return s.casAll(ctx, unitIDs, StatusReserved, StatusInStock)
}

func (s *PGStore) PinReserved(ctx context.Context, unitIDs []string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE units SET reserve_expires_at=NULL, updated_at=now()
		WHERE id = ANY($1) AND status='reserved'`, unitIDs)
	if err != nil {
		return err
	}
	if int(ct.RowsAffected()) != len(unitIDs) {
		return fmt.Errorf("%w: expected %d reserved units, pinned %d",
			ErrInvalidTransition, len(unitIDs), ct.RowsAffected())
	}
	return nil
}

func (s *PGStore) MarkSold(ctx context.Context, unitIDs []string) error {
	return s.casAll(ctx, unitIDs, StatusReserved, StatusSold)
}

func (s *PGStore) RevertSold(ctx context.Context, unitIDs []string) error {
	_, err := s.DB.Exec(ctx, `UPDATE units SET status='reserved', updated_at=now()
		WHERE id = ANY($1) AND status='sold'`, unitIDs)
	return err
}

func (s *PGStore) MarkPendingRMA(ctx context.Context, unitID string) error {
	return s.casAll(ctx, []string{unitID}, StatusSold, StatusPendingRMA)
}

func (s *PGStore) CancelPendingRMA(ctx context.Context, unitID string) error {
	return s.casAll(ctx, []string{unitID}, StatusPendingRMA, StatusSold)
}

func (s *PGStore) ResolveRefund(ctx context.Context, unitID string) error {
	return s.casAll(ctx, []string{unitID}, StatusPendingRMA, StatusRefunded)
}

// casAll transitions every unit from -> to inside one tx, or rolls back.
func (s *PGStore) casAll(ctx context.Context, unitIDs []string, from, to Status) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	changes := make([]StatusChange, 0, len(unitIDs))
	for _, id := range unitIDs {
		u, err := s.casOneTx(ctx, tx, id, from, to)
		if err != nil {
			return err
		}
		changes = append(changes, StatusChange{
			ProductID: u.ProductID, UnitID: u.ID, SerialNumber: u.SerialNumber,
			From: from, To: to, At: u.UpdatedAt,
		})
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for _, ch := range changes {
		s.publish(ctx, ch)
	}
	return nil
}

func (s *PGStore) casOneTx(ctx context.Context, tx pgx.Tx, unitID string, from, to Status) (Unit, error) {
	row := tx.QueryRow(ctx, `
		UPDATE units SET status=$3, reserve_expires_at=NULL, updated_at=now()
		WHERE id=$1 AND status=$2
		RETURNING `+unitCols, unitID, string(from), string(to))
	u, err := scanUnit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var cur string
		if gerr := tx.QueryRow(ctx, `SELECT status FROM units WHERE id=$1`, unitID).Scan(&cur); gerr != nil {
			return Unit{}, ErrUnitNotFound
		}
		return Unit{}, fmt.Errorf("%w: unit %s is %s, want %s", ErrInvalidTransition, unitID, cur, from)
	}
	return u, err
}

func (s *PGStore) ResolveReplacement(ctx context.Context, oldUnitID, newUnitID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	oldU, err := s.casOneTx(ctx, tx, oldUnitID, StatusPendingRMA, StatusReplaced)
	if err != nil {
		return err
	}
	// new unit passes through reserved on its way to sold
	newU, err := s.casOneTx(ctx, tx, newUnitID, StatusInStock, StatusReserved)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return ErrUnitUnavailable
		}
		return err
	}
	if _, err := s.casOneTx(ctx, tx, newUnitID, StatusReserved, StatusSold); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	now := time.Now()
	s.publish(ctx, StatusChange{ProductID: oldU.ProductID, UnitID: oldU.ID, SerialNumber: oldU.SerialNumber,
		From: StatusPendingRMA, To: StatusReplaced, At: now})
	s.publish(ctx, StatusChange{ProductID: newU.ProductID, UnitID: newU.ID, SerialNumber: newU.SerialNumber,
		From: StatusInStock, To: StatusReserved, At: now})
	s.publish(ctx, StatusChange{ProductID: newU.ProductID, UnitID: newU.ID, SerialNumber: newU.SerialNumber,
		From: StatusReserved, To: StatusSold, At: now})
	return nil
}

func (s *PGStore) SweepExpired(ctx context.Context, now time.Time) ([]Unit, error) {
	rows, err := s.DB.Query(ctx, `
		UPDATE units SET status='in_stock', reserve_expires_at=NULL, updated_at=now()
		WHERE status='reserved' AND reserve_expires_at IS NOT NULL AND reserve_expires_at < $1
		RETURNING `+unitCols, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range out {
		s.publish(ctx, StatusChange{ProductID: u.ProductID, UnitID: u.ID, SerialNumber: u.SerialNumber,
			From: StatusReserved, To: StatusInStock, At: u.UpdatedAt})
	}
	return out, nil
}

func (s *PGStore) IncrementSales(ctx context.Context, productID string, delta int) error {
	ct, err := s.DB.Exec(ctx, `UPDATE products SET sales = sales + $2, updated_at=now() WHERE id=$1`,
		productID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrProductNotFound
	}
	return nil
}

func (s *PGStore) CountByStatus(ctx context.Context, productID string, status Status) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM units WHERE product_id=$1 AND status=$2`,
		productID, string(status)).Scan(&n)
	return n, err
}

func (s *PGStore) publish(ctx context.Context, ch StatusChange) {
	if s.Events != nil {
		s.Events.UnitStatusChanged(ctx, ch)
	}
}
