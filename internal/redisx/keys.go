package redisx

import "time"

const (
	// Idempotency for sale commits: idem:txn:commit:{external_id} -> transaction id
	KeyIdemCommit = "idem:txn:commit:%s"

	// Cache of transaction status: txn_status:{transaction_id} -> {"status": "..."}
	KeyTxnStatus = "txn_status:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Last low-stock alert per product, to avoid re-alerting on every sale:
	// lowstock:{product_id} -> "1"
	KeyLowStockAlerted = "lowstock:%s"
)

var (
	TTLIdempotency     = 24 * time.Hour
	TTLStatusCache     = 5 * time.Minute
	TTLDedup           = 48 * time.Hour
	TTLLowStockAlerted = 6 * time.Hour
)
