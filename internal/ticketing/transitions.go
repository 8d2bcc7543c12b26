package ticketing

import "github.com/Gabrielda2002/Back-end-digiturno/internal/models"

// transitionMap lists, per current state, the states a ticket may move to.
// States missing from the map are terminal.
var transitionMap = map[models.TicketState][]models.TicketState{
	models.StateWaiting: {models.StateCalled, models.StateCancelled, models.StateRedirected},
	models.StateCalled:  {models.StateServed, models.StateCancelled, models.StateRedirected},
}

func ValidTransition(from, to models.TicketState) bool {
	for _, allowed := range transitionMap[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RequiresModule reports whether entering state needs a module assignment.
func RequiresModule(state models.TicketState) bool {
	return state == models.StateCalled || state == models.StateRedirected
}

// ActiveStates are the states shown on a site's display.
func ActiveStates() []models.TicketState {
	return []models.TicketState{models.StateWaiting, models.StateCalled}
}
