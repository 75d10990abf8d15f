package services

import "storefront/internal/models"

// transitionTable maps a current status to the statuses it may move to.
// A nil table allows every move.
type transitionTable map[models.OrderStatus][]models.OrderStatus

func (t transitionTable) allows(from, to models.OrderStatus) bool {
	if t == nil || from == to {
		return true
	}
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

var flatTransitions transitionTable

// strictTransitions treats completed and cancelled as terminal.
var strictTransitions = transitionTable{
	models.StatusPendingPayment: {models.StatusPending, models.StatusCompleted, models.StatusCancelled},
	models.StatusPending:        {models.StatusCompleted, models.StatusCancelled},
}
