// Package scanner derives call and put candidates from quote snapshots using
// the open-drive heuristic: equities that opened exactly at the session low
// (calls) or high (puts) and are moving in the drive's direction.
package scanner

import (
	"log"
	"math"
	"sort"

	"github.com/pmansara/opendrive/internal/models"
)

// Tolerances for the open-equals-extreme comparisons. The gate is strict;
// the scoring predicate repeats the check with a looser tolerance.
const (
	gateTolerance  = 0.001
	scoreTolerance = 0.01
)

// predicate is one named scoring condition over a snapshot. Each contributes
// 0 or 1 to the candidate's total.
type predicate struct {
	Name string
	Eval func(q *models.QuoteSnapshot) bool
}

// callPredicates is the fixed ordered predicate list for call candidates.
var callPredicates = []predicate{
	{"open_equals_low", func(q *models.QuoteSnapshot) bool {
		return math.Abs(q.Open-q.Low) < scoreTolerance
	}},
	{"net_change_positive", func(q *models.QuoteSnapshot) bool {
		return q.NetChange > 0
	}},
	{"lower_range_gt_upper_range", func(q *models.QuoteSnapshot) bool {
		return (q.Open - q.Low) > (q.High - q.Close)
	}},
	{"close_ge_prev_open", func(q *models.QuoteSnapshot) bool {
		return q.Close >= q.Prev.Open
	}},
	{"open_le_prev_close", func(q *models.QuoteSnapshot) bool {
		return q.Open <= q.Prev.Close
	}},
	{"high_gt_prev_high", func(q *models.QuoteSnapshot) bool {
		return q.High > q.Prev.High
	}},
	{"low_lt_prev_low", func(q *models.QuoteSnapshot) bool {
		return q.Low < q.Prev.Low
	}},
	{"close_gt_prev_close", func(q *models.QuoteSnapshot) bool {
		return q.Close > q.Prev.Close
	}},
}

// putPredicates mirrors callPredicates for the downside.
var putPredicates = []predicate{
	{"open_equals_high", func(q *models.QuoteSnapshot) bool {
		return math.Abs(q.Open-q.High) < scoreTolerance
	}},
	{"net_change_negative", func(q *models.QuoteSnapshot) bool {
		return q.NetChange < 0
	}},
	{"upper_range_gt_lower_range", func(q *models.QuoteSnapshot) bool {
		return (q.High - q.Open) > (q.Close - q.Low)
	}},
	{"close_le_prev_open", func(q *models.QuoteSnapshot) bool {
		return q.Close <= q.Prev.Open
	}},
	{"open_ge_prev_close", func(q *models.QuoteSnapshot) bool {
		return q.Open >= q.Prev.Close
	}},
	{"high_lt_prev_high", func(q *models.QuoteSnapshot) bool {
		return q.High < q.Prev.High
	}},
	{"low_gt_prev_low", func(q *models.QuoteSnapshot) bool {
		return q.Low > q.Prev.Low
	}},
	{"close_lt_prev_close", func(q *models.QuoteSnapshot) bool {
		return q.Close < q.Prev.Close
	}},
}

// CallEligible is the gate a row must pass before call scoring: it opened at
// the session low and is up on the day.
func CallEligible(q *models.QuoteSnapshot) bool {
	return math.Abs(q.Open-q.Low) < gateTolerance && q.NetChange > 0
}

// PutEligible mirrors CallEligible for puts.
func PutEligible(q *models.QuoteSnapshot) bool {
	return math.Abs(q.Open-q.High) < gateTolerance && q.NetChange < 0
}

// Scorer computes gating predicates and weighted scores for call and put
// candidates, then ranks and selects the top N per side.
type Scorer struct {
	topN   int
	logger *log.Logger
}

// NewScorer creates a scorer selecting topN candidates per side.
func NewScorer(topN int, logger *log.Logger) *Scorer {
	if topN <= 0 {
		topN = 3
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scorer{topN: topN, logger: logger}
}

// ScoreCandidates drops invalid rows, gates each side, scores, and returns at
// most topN call and put candidates ordered by total score descending. The
// sort is stable: candidates with equal totals keep their input order.
func (s *Scorer) ScoreCandidates(snapshots []models.QuoteSnapshot) (topCalls, topPuts []models.ScoredCandidate) {
	valid := make([]models.QuoteSnapshot, 0, len(snapshots))
	for i := range snapshots {
		if snapshots[i].Valid() {
			valid = append(valid, snapshots[i])
		}
	}
	if dropped := len(snapshots) - len(valid); dropped > 0 {
		s.logger.Printf("scorer: dropped %d rows with unparsable numeric fields", dropped)
	}

	var calls, puts []models.ScoredCandidate
	for i := range valid {
		q := &valid[i]
		if CallEligible(q) {
			calls = append(calls, score(q, models.RightCall, callPredicates))
		}
		if PutEligible(q) {
			puts = append(puts, score(q, models.RightPut, putPredicates))
		}
	}

	return top(calls, s.topN), top(puts, s.topN)
}

// score evaluates the fixed predicate list and sums the components.
func score(q *models.QuoteSnapshot, right models.OptionRight, preds []predicate) models.ScoredCandidate {
	c := models.ScoredCandidate{
		Snapshot:   *q,
		OptionType: right,
		Components: make(map[string]int, len(preds)),
	}
	for _, p := range preds {
		v := 0
		if p.Eval(q) {
			v = 1
		}
		c.Components[p.Name] = v
		c.Total += v
	}
	return c
}

// top sorts stably by total descending and truncates to n. First-seen wins
// on ties.
func top(candidates []models.ScoredCandidate, n int) []models.ScoredCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Total > candidates[j].Total
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
