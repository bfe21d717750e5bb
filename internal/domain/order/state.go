package order

// orderState implements the state pattern for order lifecycle transitions.
// Transitions are monotonic: PENDING -> {COMPLETED | CANCELLED}, terminal forever.
type orderState interface {
	Status() Status
	OnPaymentSucceeded(o *Order) (orderState, bool, error)
	OnPaymentFailed(o *Order, reason string) (orderState, bool, error)
}

func stateFor(s Status) orderState {
	switch s {
	case StatusCompleted:
		return completedState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return pendingState{}
	}
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaymentSucceeded(o *Order) (orderState, bool, error) {
	o.FailureReason = ""
	return completedState{}, true, nil
}

func (pendingState) OnPaymentFailed(o *Order, reason string) (orderState, bool, error) {
	o.FailureReason = reason
	return cancelledState{}, true, nil
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) OnPaymentSucceeded(*Order) (orderState, bool, error) {
	return completedState{}, false, nil
}

func (completedState) OnPaymentFailed(*Order, string) (orderState, bool, error) {
	return nil, false, ErrContradictoryEvent
}

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnPaymentSucceeded(*Order) (orderState, bool, error) {
	return nil, false, ErrContradictoryEvent
}

func (cancelledState) OnPaymentFailed(*Order, string) (orderState, bool, error) {
	return cancelledState{}, false, nil
}
