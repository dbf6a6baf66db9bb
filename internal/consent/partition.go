package consent

import (
	"sort"

	"chat-client/internal/models"
)

// Partition splits the user directory by messaging eligibility. The three
// lists are disjoint and the local user appears in none of them.
type Partition struct {
	Messageable      []models.User `json:"messageable"`
	AwaitingResponse []models.User `json:"awaiting_response"`
	Requestable      []models.User `json:"requestable"`
}

// PartitionDirectory recomputes the partition from scratch. It is a pure
// function of the registry and the directory, so it can never drift from the
// consent state; callers recompute it after every relevant mutation.
func PartitionDirectory(reg *Registry, directory []models.User, localID int) Partition {
	var p Partition
	for _, u := range directory {
		if u.ID == localID {
			continue
		}
		switch reg.StateOf(u.ID) {
		case StateMutual:
			p.Messageable = append(p.Messageable, u)
		case StatePendingOutgoing, StatePendingIncoming:
			p.AwaitingResponse = append(p.AwaitingResponse, u)
		default:
			p.Requestable = append(p.Requestable, u)
		}
	}
	sortByUsername(p.Messageable)
	sortByUsername(p.AwaitingResponse)
	sortByUsername(p.Requestable)
	return p
}

func sortByUsername(users []models.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
}
