package order

import "time"

// lifecycleState implements the state pattern for order lifecycle transitions.
type lifecycleState interface {
	Status() Status
	OnPaymentConfirmed(o *Order, c Confirmation) (lifecycleState, error)
	OnPaymentFailed(o *Order, reason string) (lifecycleState, error)
	OnFulfillmentStarted(o *Order) (lifecycleState, error)
	OnFulfillmentCompleted(o *Order) (lifecycleState, error)
}

func stateFor(s Status) lifecycleState {
	switch s {
	case StatusPending:
		return pendingState{}
	case StatusPaid:
		return paidState{}
	case StatusFulfilling:
		return fulfillingState{}
	case StatusFulfilled:
		return fulfilledState{}
	case StatusFailed:
		return failedState{}
	}
	return pendingState{}
}

func (o *Order) transition(apply func(lifecycleState) (lifecycleState, error)) error {
	next, err := apply(stateFor(o.Status))
	if err != nil {
		return err
	}
	o.Status = next.Status()
	o.touch()
	return nil
}

// PaymentConfirmed moves the order to paid and stores the confirmation record.
// It is only legal from pending; idempotent replay of confirmations is handled
// by the caller before the state machine is consulted.
func (o *Order) PaymentConfirmed(c Confirmation) error {
	return o.transition(func(s lifecycleState) (lifecycleState, error) {
		return s.OnPaymentConfirmed(o, c)
	})
}

func (o *Order) PaymentFailed(reason string) error {
	return o.transition(func(s lifecycleState) (lifecycleState, error) {
		return s.OnPaymentFailed(o, reason)
	})
}

func (o *Order) FulfillmentStarted() error {
	return o.transition(func(s lifecycleState) (lifecycleState, error) {
		return s.OnFulfillmentStarted(o)
	})
}

func (o *Order) FulfillmentCompleted() error {
	return o.transition(func(s lifecycleState) (lifecycleState, error) {
		return s.OnFulfillmentCompleted(o)
	})
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaymentConfirmed(o *Order, c Confirmation) (lifecycleState, error) {
	if o.PaymentIntentRef == "" {
		return nil, ErrIntentNotIssued
	}
	if c.ConfirmedAt.IsZero() {
		c.ConfirmedAt = time.Now().UTC()
	}
	o.Confirmation = &c
	o.FailureReason = ""
	return paidState{}, nil
}

func (pendingState) OnPaymentFailed(o *Order, reason string) (lifecycleState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

func (pendingState) OnFulfillmentStarted(*Order) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (pendingState) OnFulfillmentCompleted(*Order) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

type paidState struct{}

func (paidState) Status() Status { return StatusPaid }

func (paidState) OnPaymentConfirmed(*Order, Confirmation) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (paidState) OnPaymentFailed(*Order, string) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (paidState) OnFulfillmentStarted(*Order) (lifecycleState, error) {
	return fulfillingState{}, nil
}

func (paidState) OnFulfillmentCompleted(*Order) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

type fulfillingState struct{}

func (fulfillingState) Status() Status { return StatusFulfilling }

func (fulfillingState) OnPaymentConfirmed(*Order, Confirmation) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (fulfillingState) OnPaymentFailed(*Order, string) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (fulfillingState) OnFulfillmentStarted(*Order) (lifecycleState, error) {
	// Recovery may restart fulfillment that was interrupted mid-flight.
	return fulfillingState{}, nil
}

func (fulfillingState) OnFulfillmentCompleted(*Order) (lifecycleState, error) {
	return fulfilledState{}, nil
}

type fulfilledState struct{}

func (fulfilledState) Status() Status { return StatusFulfilled }

func (fulfilledState) OnPaymentConfirmed(*Order, Confirmation) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (fulfilledState) OnPaymentFailed(*Order, string) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (fulfilledState) OnFulfillmentStarted(*Order) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (fulfilledState) OnFulfillmentCompleted(*Order) (lifecycleState, error) {
	return fulfilledState{}, nil
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnPaymentConfirmed(*Order, Confirmation) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnPaymentFailed(o *Order, reason string) (lifecycleState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

func (failedState) OnFulfillmentStarted(*Order) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnFulfillmentCompleted(*Order) (lifecycleState, error) {
	return nil, ErrInvalidStateTransition
}
