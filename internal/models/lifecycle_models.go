package models

// Status is the lifecycle state shared by resource requests, lab bookings and loans.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusApproved  Status = "approved"
	StatusReturned  Status = "returned"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no transition may leave the status.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// IsValidStatus checks if the provided status string is a known lifecycle status.
func IsValidStatus(status string) bool {
	switch Status(status) {
	case StatusPending,
		StatusFulfilled,
		StatusApproved,
		StatusReturned,
		StatusRejected,
		StatusCancelled:
		return true
	default:
		return false
	}
}

// Action is one of the closed set of lifecycle actions a caller may submit.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionFulfill Action = "fulfill"
	ActionReturn  Action = "return"
	ActionCancel  Action = "cancel"
)

// ParseAction converts a wire value into an Action.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionApprove, ActionReject, ActionFulfill, ActionReturn, ActionCancel:
		return a, true
	default:
		return "", false
	}
}

// Kind names the entity families driven by the lifecycle engine.
type Kind string

const (
	KindResourceRequest Kind = "resource_request"
	KindLabBooking      Kind = "lab_booking"
	KindLoan            Kind = "loan"
)
