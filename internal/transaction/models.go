package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusReserved  Status = "Reserved"
	StatusCompleted Status = "Completed"
	StatusRefunded  Status = "Refunded"
)

type Line struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	SerialNumbers []string        `json:"serial_numbers"`
}

// Transaction is immutable once created, except for status transitions
// driven by finalization and RMA outcomes, and serial swaps on replacement.
type Transaction struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"` // human-readable, e.g. TXN-20260830-1A2B3C
	ExternalID    string          `json:"external_id,omitempty"`
	CustomerID    string          `json:"customer_id"`
	Lines         []Line          `json:"products"`
	TotalPrice    decimal.Decimal `json:"total_price"` // gross, VAT-inclusive
	VAT           decimal.Decimal `json:"vat"`
	Discount      decimal.Decimal `json:"discount"`
	AmountPaid    decimal.Decimal `json:"total_amount_paid"`
	// Change keeps the raw paid-minus-total value for audit; DisplayChange
	// floors it at zero for receipts.
	Change        decimal.Decimal `json:"change"`
	PaymentMethod string          `json:"payment_method"`
	Status        Status          `json:"status"`
	Date          time.Time       `json:"transaction_date"`
}

func (t Transaction) DisplayChange() decimal.Decimal {
	if t.Change.IsNegative() {
		return decimal.Zero
	}
	return t.Change
}

type Customer struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}
