package ledger

// Status is the lifecycle state of a single serial-numbered unit.
type Status string

const (
	StatusInStock    Status = "in_stock"
	StatusReserved   Status = "reserved"
	StatusSold       Status = "sold"
	StatusPendingRMA Status = "pending_rma"
	StatusRefunded   Status = "refunded"
	StatusReplaced   Status = "replaced"
)

// validNext is the full transition graph. refunded and replaced are
// terminal. sold is reachable from in_stock only via reserved; the
// replacement path reserves the fresh unit before selling it.
var validNext = map[Status]map[Status]bool{
	StatusInStock:    {StatusReserved: true},
	StatusReserved:   {StatusSold: true, StatusInStock: true},
	StatusSold:       {StatusPendingRMA: true},
	StatusPendingRMA: {StatusRefunded: true, StatusReplaced: true, StatusSold: true},
	StatusRefunded:   {},
	StatusReplaced:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}
