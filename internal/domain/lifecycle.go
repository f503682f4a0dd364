package domain

// StateAction is a requested transition on an event's lifecycle. Admin actions
// and initiator review actions share one table so every (state, action) pair
// is covered in one place.
type StateAction string

const (
	ActionPublish      StateAction = "PUBLISH_EVENT"
	ActionReject       StateAction = "REJECT_EVENT"
	ActionSendToReview StateAction = "SEND_TO_REVIEW"
	ActionCancelReview StateAction = "CANCEL_REVIEW"
)

func (a StateAction) Valid() bool {
	switch a {
	case ActionPublish, ActionReject, ActionSendToReview, ActionCancelReview:
		return true
	}
	return false
}

// Admin reports whether the action is reserved for administrators.
func (a StateAction) Admin() bool {
	return a == ActionPublish || a == ActionReject
}

type transitionKey struct {
	state  EventState
	action StateAction
}

// transitions is the full lifecycle table. Missing pairs are conflicts.
var transitions = map[transitionKey]EventState{
	{EventPending, ActionPublish}: EventPublished,

	{EventPending, ActionReject}:  EventCanceled,
	{EventCanceled, ActionReject}: EventCanceled,

	{EventPending, ActionCancelReview}:  EventCanceled,
	{EventCanceled, ActionCancelReview}: EventCanceled,

	{EventPending, ActionSendToReview}:  EventPending,
	{EventCanceled, ActionSendToReview}: EventPending,
}

// Transition resolves (current state, action) to the next state, or a
// conflict error when the pair is not allowed. Published events accept no
// further transitions: they cannot be unpublished or sent back to review.
func Transition(state EventState, action StateAction) (EventState, error) {
	next, ok := transitions[transitionKey{state, action}]
	if !ok {
		switch action {
		case ActionPublish:
			return state, ErrEventNotPending
		default:
			return state, ErrEventPublished
		}
	}
	return next, nil
}
