package order

import (
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	"github.com/shopspring/decimal"
)

// Transition names a change the saga may attempt on an order.
type Transition string

const (
	TransitionPrice     Transition = "price"
	TransitionSucceed   Transition = "succeed"
	TransitionFail      Transition = "fail"
	TransitionCancel    Transition = "cancel"
	TransitionArchive   Transition = "archive"
	TransitionUnarchive Transition = "unarchive"
	TransitionDelete    Transition = "delete"
)

type guard func(o *Order) error

func requireProcessing(o *Order) error {
	if o.Status != StatusProcessing {
		return ErrInvalidStateTransition
	}
	return nil
}

func requireSettled(o *Order) error {
	if o.Status == StatusProcessing {
		return ErrProcessing
	}
	return nil
}

// guards holds exactly one check per transition; nothing else decides legality.
var guards = map[Transition]guard{
	TransitionPrice:   requireProcessing,
	TransitionSucceed: requireProcessing,
	TransitionFail:    requireProcessing,
	TransitionCancel:  requireProcessing,
	TransitionArchive: func(o *Order) error {
		if err := requireSettled(o); err != nil {
			return err
		}
		if o.Archived {
			return ErrInvalidStateTransition
		}
		return nil
	},
	TransitionUnarchive: func(o *Order) error {
		if err := requireSettled(o); err != nil {
			return err
		}
		if !o.Archived {
			return ErrInvalidStateTransition
		}
		return nil
	},
	TransitionDelete: requireSettled,
}

var targetStatus = map[Transition]Status{
	TransitionSucceed: StatusSuccessful,
	TransitionFail:    StatusFailed,
	TransitionCancel:  StatusCanceled,
}

// Can reports whether t is legal for the order's current state.
func (o *Order) Can(t Transition) error {
	g, ok := guards[t]
	if !ok {
		return ErrInvalidStateTransition
	}
	return g(o)
}

// TransitionFor maps a requested status to its transition.
func TransitionFor(s Status) (Transition, bool) {
	for t, target := range targetStatus {
		if target == s {
			return t, true
		}
	}
	return "", false
}

// Apply moves the order into the status owned by t, stamping the execution date.
func (o *Order) Apply(t Transition, now time.Time) error {
	to, ok := targetStatus[t]
	if !ok {
		return ErrInvalidStateTransition
	}
	if err := o.Can(t); err != nil {
		return err
	}
	o.Status = to
	executed := now.UTC()
	o.ExecutionDate = &executed
	return nil
}

// ApplyPrices copies the ledger's prices onto matching lines.
func (o *Order) ApplyPrices(prices map[string]decimal.Decimal) error {
	if err := o.Can(TransitionPrice); err != nil {
		return err
	}
	for i := range o.Lines {
		if p, ok := prices[o.Lines[i].ProductID]; ok {
			o.Lines[i].Price = decimal.NewNullDecimal(p)
		}
	}
	return nil
}

func (o *Order) Archive() error {
	if err := o.Can(TransitionArchive); err != nil {
		return err
	}
	o.Archived = true
	return nil
}

func (o *Order) Unarchive() error {
	if err := o.Can(TransitionUnarchive); err != nil {
		return err
	}
	o.Archived = false
	return nil
}

// CheckDelete verifies the caller may remove the order.
func (o *Order) CheckDelete(role identity.Role) error {
	if !role.IsAdmin() {
		return ErrUnauthorized
	}
	return o.Can(TransitionDelete)
}
