package domain

// PlanModeration applies a single organizer decision to an ordered batch of
// requests against an event snapshot. It is pure: the returned result lists
// the statuses to persist, and Admitted is how much the ledger must grow.
//
// Preconditions (whole batch fails, nothing to persist):
//   - the batch is non-empty and every request belongs to the event;
//   - every request is still PENDING;
//   - for a confirm on a limited, moderated event: the ledger has headroom.
//
// On the confirm walk the input order is the admission order: once the ledger
// reaches the limit, every remaining request is rejected instead.
func PlanModeration(e *Event, batch []ParticipationRequest, decision ModerationDecision) (ModerationResult, int, error) {
	if len(batch) == 0 {
		return ModerationResult{}, 0, ErrEmptyBatch
	}
	for i := range batch {
		if batch[i].EventID != e.ID {
			return ModerationResult{}, 0, ErrRequestNotFound
		}
		if batch[i].Status != RequestPending {
			return ModerationResult{}, 0, ErrRequestNotPending
		}
	}

	var res ModerationResult

	if decision == DecisionReject {
		for i := range batch {
			batch[i].Status = RequestRejected
			res.Rejected = append(res.Rejected, batch[i])
		}
		return res, 0, nil
	}

	// Confirm path. Unlimited or unmoderated events have nothing to walk:
	// every request is admitted and the ledger grows by the batch size.
	if e.Unlimited() || !e.RequestModeration {
		for i := range batch {
			batch[i].Status = RequestConfirmed
			res.Confirmed = append(res.Confirmed, batch[i])
		}
		return res, len(res.Confirmed), nil
	}

	if e.Full() {
		return ModerationResult{}, 0, ErrLimitReached
	}

	confirmed := e.ConfirmedRequests
	for i := range batch {
		if confirmed < e.ParticipantLimit {
			batch[i].Status = RequestConfirmed
			res.Confirmed = append(res.Confirmed, batch[i])
			confirmed++
		} else {
			batch[i].Status = RequestRejected
			res.Rejected = append(res.Rejected, batch[i])
		}
	}
	return res, confirmed - e.ConfirmedRequests, nil
}
