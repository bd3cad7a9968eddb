package events

import (
	"encoding/json"
	"time"
)

const (
	EventUnitStatusChanged    = "UnitStatusChanged"
	EventTransactionCommitted = "TransactionCommitted"
	EventRMAResolved          = "RMAResolved"
	EventStockLow             = "StockLow"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339
	Producer      string          `json:"producer"`    // e.g. "pos-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event ----

type UnitStatusChangedPayload struct {
	ProductID    string    `json:"product_id"`
	UnitID       string    `json:"unit_id"`
	SerialNumber string    `json:"serial_number"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	At           time.Time `json:"at"`
}

type TransactionLine struct {
	ProductID     string   `json:"product_id"`
	Quantity      int      `json:"quantity"`
	SerialNumbers []string `json:"serial_numbers"`
}

type TransactionCommittedPayload struct {
	TransactionID string            `json:"transaction_id"`
	Status        string            `json:"status"` // Completed | Reserved
	Lines         []TransactionLine `json:"lines"`
	TotalPrice    string            `json:"total_price"`
}

type RMAResolvedPayload struct {
	RMAID         string `json:"rma_id"`
	TransactionID string `json:"transaction_id"`
	Process       string `json:"process"` // Refund | Replacement
	SerialNumber  string `json:"serial_number"`
	NewSerial     string `json:"new_serial,omitempty"`
}

type StockLowPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	InStock   int    `json:"in_stock"`
	Threshold int    `json:"threshold"`
}
