package models

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

var orderStatuses = map[string]struct{}{
	OrderStatusPending:    {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func IsValidOrderStatus(s string) bool {
	_, ok := orderStatuses[s]
	return ok
}

// Return statuses
const (
	ReturnStatusPending    = "pending"
	ReturnStatusReceived   = "received"
	ReturnStatusInspecting = "inspecting"
	ReturnStatusRejected   = "rejected"
	ReturnStatusCompleted  = "completed"
)

// ReturnStatuses lists return statuses in lifecycle order.
var ReturnStatuses = []string{
	ReturnStatusPending,
	ReturnStatusReceived,
	ReturnStatusInspecting,
	ReturnStatusRejected,
	ReturnStatusCompleted,
}

var returnTransitions = map[string][]string{
	ReturnStatusPending:    {ReturnStatusReceived, ReturnStatusRejected},
	ReturnStatusReceived:   {ReturnStatusInspecting, ReturnStatusRejected},
	ReturnStatusInspecting: {ReturnStatusCompleted, ReturnStatusRejected},
}

func IsValidReturnStatus(s string) bool {
	for _, st := range ReturnStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransitionReturn reports whether from → to is allowed by the return lifecycle.
// Staying in the same status is always allowed.
func CanTransitionReturn(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range returnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalReturnStatus reports whether no further transition leaves the status.
func IsTerminalReturnStatus(s string) bool {
	return len(returnTransitions[s]) == 0
}

// Order listing status filters
const (
	OrderFilterAll       = "all"
	OrderFilterActive    = "active"
	OrderFilterCancelled = "cancelled"
)

// Time range filters
const (
	TimeRange3Months = "3months"
	TimeRange6Months = "6months"
	TimeRangeYear    = "year"
	TimeRangeAll     = "all"
)
