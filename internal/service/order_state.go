package service

import (
	"time"

	"orderflow/internal/apperr"
	"orderflow/internal/model"
)

// orderTransitions is the only legal edge set for order statuses. Statuses
// missing from the map are terminal.
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:    {model.OrderStatusPaid, model.OrderStatusCancelled},
	model.OrderStatusPaid:       {model.OrderStatusProcessing, model.OrderStatusRefunded},
	model.OrderStatusProcessing: {model.OrderStatusCompleted, model.OrderStatusCancelled},
	model.OrderStatusCompleted:  {model.OrderStatusRefunded},
	model.OrderStatusCancelled:  {},
	model.OrderStatusRefunded:   {},
}

// AllowedOrderTargets returns the legal targets from a given status.
func AllowedOrderTargets(from model.OrderStatus) []model.OrderStatus {
	return orderTransitions[from]
}

// TransitionOrder validates and applies an order status transition in place.
// It mutates only the passed order (status + timestamps); persistence and
// downstream triggers are the caller's job.
func TransitionOrder(order *model.Order, requested model.OrderStatus) error {
	if order.Status == requested {
		return &apperr.NoOpTransitionError{Status: string(order.Status)}
	}

	allowed, ok := orderTransitions[order.Status]
	if !ok {
		allowed = nil
	}
	legal := false
	for _, s := range allowed {
		if s == requested {
			legal = true
			break
		}
	}
	if !legal {
		names := make([]string, 0, len(allowed))
		for _, s := range allowed {
			names = append(names, string(s))
		}
		return &apperr.InvalidTransitionError{
			From:    string(order.Status),
			To:      string(requested),
			Allowed: names,
		}
	}

	now := time.Now()
	order.Status = requested
	order.UpdatedAt = now
	switch requested {
	case model.OrderStatusPaid:
		order.PaidAt = &now
	case model.OrderStatusCompleted:
		order.CompletedAt = &now
	}
	return nil
}
