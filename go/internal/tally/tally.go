package tally

import (
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/models"
)

// Count is a suggestion together with the number of votes it received.
type Count struct {
	Suggestion models.Suggestion `json:"suggestion"`
	Votes      int               `json:"votes"`
}

// Result is the computed vote tally for a set of suggestions.
type Result struct {
	Counts     map[uuid.UUID]int `json:"counts"`
	TotalVotes int               `json:"total_votes"`
	MaxVotes   int               `json:"max_votes"`
	Sorted     []Count           `json:"sorted"`
	Winners    []Count           `json:"winners"`
}

// Tally counts votes per suggestion and ranks the suggestions.
//
// votes maps user id to the suggestion that user voted for. TotalVotes is the
// number of voters, so a vote pointing at an unknown suggestion still counts
// towards the total but not towards any suggestion. Equal counts keep the
// order of the suggestions slice.
func Tally(suggestions []models.Suggestion, votes map[string]uuid.UUID) Result {
	counts := make(map[uuid.UUID]int, len(suggestions))
	for _, s := range suggestions {
		counts[s.ID] = 0
	}
	for _, suggestionID := range votes {
		if _, ok := counts[suggestionID]; ok {
			counts[suggestionID]++
		}
	}

	sorted := make([]Count, len(suggestions))
	for i, s := range suggestions {
		sorted[i] = Count{Suggestion: s, Votes: counts[s.ID]}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Votes > sorted[j].Votes
	})

	maxVotes := 0
	for _, c := range sorted {
		if c.Votes > maxVotes {
			maxVotes = c.Votes
		}
	}

	winners := []Count{}
	if maxVotes > 0 {
		for _, c := range sorted {
			if c.Votes == maxVotes {
				winners = append(winners, c)
			}
		}
	}

	return Result{
		Counts:     counts,
		TotalVotes: len(votes),
		MaxVotes:   maxVotes,
		Sorted:     sorted,
		Winners:    winners,
	}
}

// IsTie reports whether more than one suggestion shares the top count.
func (r Result) IsTie() bool {
	return len(r.Winners) > 1
}

// WinnerIDs returns the ids of the winning suggestions in ranking order.
func (r Result) WinnerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Winners))
	for i, w := range r.Winners {
		ids[i] = w.Suggestion.ID
	}
	return ids
}

// AllVoted reports whether every participant on the roster holds a vote.
func AllVoted(participants []models.Participant, votes map[string]uuid.UUID) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if _, ok := votes[p.UserID]; !ok {
			return false
		}
	}
	return true
}
