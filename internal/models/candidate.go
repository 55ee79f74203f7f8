package models

// ScoredCandidate is a quote snapshot that passed gating for one side,
// together with its per-predicate component scores. Derived and read-only;
// recomputed every cycle, never persisted.
type ScoredCandidate struct {
	Snapshot   QuoteSnapshot  `json:"snapshot"`
	OptionType OptionRight    `json:"option_type"`
	Components map[string]int `json:"components"` // predicate name -> 0/1
	Total      int            `json:"total"`      // sum of components, in [0,8]
}

// MaxScore is the number of scoring predicates per side.
const MaxScore = 8
