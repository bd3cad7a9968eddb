package rma

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusCompleted Status = "Completed"
)

// Process is how an approved return resolves.
type Process string

const (
	ProcessNone        Process = "None"
	ProcessRefund      Process = "Refund"
	ProcessReplacement Process = "Replacement"
)

// validNext: Pending -> Approved|Rejected, Approved -> Completed. Pending
// -> Completed is also allowed because counter staff may process a refund
// or replacement directly without a separate approval step.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusApproved: true, StatusRejected: true, StatusCompleted: true},
	StatusApproved:  {StatusCompleted: true},
	StatusRejected:  {},
	StatusCompleted: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type RMA struct {
	ID            string  `json:"id"`
	RMAID         string  `json:"rma_id"` // human-readable, e.g. RMA-20260830-1A2B3C
	TransactionID string  `json:"transaction_id"`
	ProductID     string  `json:"product_id"`
	UnitID        string  `json:"unit_id"`
	SerialNumber  string  `json:"serial_number"`
	CustomerName  string  `json:"customer_name"`
	Reason        string  `json:"reason"`
	Condition     string  `json:"condition"`
	Status        Status  `json:"status"`
	Process       Process `json:"process"`
	// Warranty is computed from the transaction date and the product's
	// warranty term on every read; it is never stored and never gates
	// eligibility.
	Warranty  WarrantyStatus `json:"warranty_status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Refund is the terminal artifact of an RMA resolved with process=Refund.
// At most one exists per RMA.
type Refund struct {
	ID              string          `json:"id"`
	RefundID        string          `json:"refund_id"`
	RMAID           string          `json:"rma_id"`
	TransactionID   string          `json:"transaction_id"`
	ProductName     string          `json:"product_name"`
	SerialNumber    string          `json:"serial_number"`
	Amount          decimal.Decimal `json:"refund_amount"`
	Method          string          `json:"refund_method"`
	ReferenceNumber string          `json:"reference_number"`
	CreatedAt       time.Time       `json:"created_at"`
}
