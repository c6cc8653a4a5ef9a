package missions

import "github.com/extrabeam/backend/internal/models"

// Actor is the side of the marketplace requesting a status change.
type Actor string

const (
	ActorCompany Actor = "company"
	ActorClient  Actor = "client"
)

// pending_payment and paid are reached only through invoicing.
var transitions = map[Actor]map[models.MissionStatus][]models.MissionStatus{
	ActorCompany: {
		models.MissionProposed:  {models.MissionValidated, models.MissionRefused},
		models.MissionValidated: {models.MissionRealized, models.MissionCompleted},
		models.MissionRealized:  {models.MissionCompleted},
	},
	ActorClient: {
		models.MissionProposed: {models.MissionRefused},
	},
}

// CanTransition reports whether actor may move a mission from one status to another.
func CanTransition(actor Actor, from, to models.MissionStatus) bool {
	for _, next := range transitions[actor][from] {
		if next == to {
			return true
		}
	}
	return false
}
