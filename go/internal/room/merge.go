package room

import (
	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
)

// MergeSuggestions combines local optimistic suggestions with the data
// service's list. Remote entries win for ids both sides know; entries only
// known locally are kept after the remote ones, in local order.
func MergeSuggestions(local, remote []models.Suggestion) []models.Suggestion {
	merged := make([]models.Suggestion, 0, len(local)+len(remote))
	seen := make(map[uuid.UUID]struct{}, len(local)+len(remote))

	for _, sg := range remote {
		if _, dup := seen[sg.ID]; dup {
			continue
		}
		seen[sg.ID] = struct{}{}
		merged = append(merged, sg)
	}
	for _, sg := range local {
		if _, dup := seen[sg.ID]; dup {
			continue
		}
		seen[sg.ID] = struct{}{}
		merged = append(merged, sg)
	}
	return merged
}

// voteMaps projects vote rows into the user -> suggestion and user -> reaction
// maps used for tallying.
func voteMaps(votes []models.Vote) (map[string]uuid.UUID, map[string]models.Reaction) {
	byUser := make(map[string]uuid.UUID, len(votes))
	reactions := make(map[string]models.Reaction, len(votes))
	for _, v := range votes {
		byUser[v.UserID] = v.SuggestionID
		reactions[v.UserID] = v.Reaction
	}
	return byUser, reactions
}
