package events

const (
	TopicUnitStatus           = "pos.unit.status"
	TopicTransactionCommitted = "pos.transaction.committed"
	TopicRMAResolved          = "pos.rma.resolved"
	TopicStockLow             = "pos.stock.low"
)

// Unit events partition by product so all movements of one product's stock
// stay ordered; transaction and RMA events partition by transaction.
func PartitionKey(id string) []byte { return []byte(id) }
