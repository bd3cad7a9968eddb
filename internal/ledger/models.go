package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	SubCategory       string          `json:"sub_category"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	BuyingPrice       decimal.Decimal `json:"buying_price"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	WarrantyTerm      string          `json:"warranty_term"` // e.g. "12 Months"
	Sales             int             `json:"sales"`
	Units             []Unit          `json:"units"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Unit struct {
	ID           string     `json:"id"`
	ProductID    string     `json:"product_id"`
	SerialNumber string     `json:"serial_number"`
	Status       Status     `json:"status"`
	// ReserveExpiresAt is set while a unit is held by an unconfirmed cart
	// line. Nil for every other status, and nil for reserved units pinned
	// by a Reserved transaction awaiting in-store payment.
	ReserveExpiresAt *time.Time `json:"reserve_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StatusChange describes one committed unit transition.
type StatusChange struct {
	ProductID    string    `json:"product_id"`
	UnitID       string    `json:"unit_id"`
	SerialNumber string    `json:"serial_number"`
	From         Status    `json:"from"`
	To           Status    `json:"to"`
	At           time.Time `json:"at"`
}

// Publisher receives committed status changes. Implementations must not
// block the caller; the Kafka publisher hands off to an async producer.
type Publisher interface {
	UnitStatusChanged(ctx context.Context, ch StatusChange)
}
