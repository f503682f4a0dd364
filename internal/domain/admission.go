package domain

// CheckJoin runs the admission preconditions against an event snapshot. It
// never mutates state; callers decide what to persist after it passes.
func CheckJoin(e *Event, requesterID int64) error {
	if e.State != EventPublished {
		return ErrNotPublished
	}
	if e.InitiatorID == requesterID {
		return ErrOwnEvent
	}
	if e.Full() {
		return ErrLimitReached
	}
	return nil
}

// InitialStatus decides how a freshly created request enters the system.
// Unlimited or unmoderated events admit immediately; everything else queues
// for the organizer.
func InitialStatus(e *Event) RequestStatus {
	if !e.RequestModeration || e.Unlimited() {
		return RequestConfirmed
	}
	return RequestPending
}

// CountsAgainstLedger reports whether a request in the given status occupies
// one unit of capacity. Only confirmed seats are ever counted, so only their
// cancellation may release capacity back.
func CountsAgainstLedger(s RequestStatus) bool {
	return s == RequestConfirmed
}
