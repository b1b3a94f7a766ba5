package tally

import (
	"time"

	"github.com/mcdev12/tabletalk/go/internal/models"
)

// Classification is the terminal state of a room once it has expired.
type Classification string

const (
	ClassificationNoSuggestions Classification = "no-suggestions"
	ClassificationNoVotes       Classification = "no-votes"
	ClassificationResolved      Classification = "resolved"
)

// Classify maps a tally to exactly one terminal state. A tie is a resolved
// room with more than one winner.
func Classify(suggestions []models.Suggestion, result Result) Classification {
	switch {
	case len(suggestions) == 0:
		return ClassificationNoSuggestions
	case result.TotalVotes == 0:
		return ClassificationNoVotes
	default:
		return ClassificationResolved
	}
}

// Outcome is the final result recorded on a closed room.
type Outcome struct {
	Classification Classification `json:"classification"`
	Tally          Result         `json:"tally"`
	Tie            bool           `json:"tie"`
	Degraded       bool           `json:"degraded,omitempty"`
	DecidedAt      time.Time      `json:"decided_at"`
}

// NewOutcome tallies and classifies in one step.
func NewOutcome(suggestions []models.Suggestion, result Result, decidedAt time.Time) Outcome {
	return Outcome{
		Classification: Classify(suggestions, result),
		Tally:          result,
		Tie:            result.IsTie(),
		DecidedAt:      decidedAt.UTC(),
	}
}
