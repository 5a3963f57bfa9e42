package store

import "qms/cashier-service/internal/models"

// Transitions are one-way: an entry never returns to waiting.
var transitionMap = map[string][]string{
	"start_service": {models.StatusWaiting},
	"complete":      {models.StatusServing},
	"no_show":       {models.StatusServing},
	"cancel":        {models.StatusWaiting},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
