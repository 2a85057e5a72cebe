package order

// Phase is the last step an order attempt completed.
type Phase string

const (
	PhaseStart          Phase = "START"
	PhaseUserResolved   Phase = "USER_RESOLVED"
	PhaseCartResolved   Phase = "CART_RESOLVED"
	PhaseStockValidated Phase = "STOCK_VALIDATED"
	PhaseOrderPersisted Phase = "ORDER_PERSISTED"
	PhaseCartCleared    Phase = "CART_CLEARED"
	PhaseDone           Phase = "DONE"
	PhaseFailed         Phase = "FAILED"
)
