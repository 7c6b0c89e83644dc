package budget

import (
	"sort"

	"RefreshSentinel/internal/model"
)

// Unlimited disables the per-run budget.
const Unlimited = -1

// Allocate ranks RUN candidates and admits at most maxPerRun of them.
// A zero budget admits nothing; a negative one admits every candidate.
//
// Ranking: effective priority desc, then staleness desc with never-refreshed
// symbols ahead of everything at the same priority, then symbol asc.
// Deferred candidates are demoted to SKIP BudgetExhausted carrying their
// 1-based rank among all candidates.
func Allocate(candidates []model.Decision, maxPerRun int) (admitted, deferred []model.Decision) {
	ranked := make([]model.Decision, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool { return Less(ranked[i], ranked[j]) })

	limit := len(ranked)
	if maxPerRun >= 0 && maxPerRun < limit {
		limit = maxPerRun
	}
	admitted = ranked[:limit:limit]
	for i := limit; i < len(ranked); i++ {
		deferred = append(deferred, ranked[i].Skip(model.Reason{
			Code: model.ReasonBudgetExhausted,
			Rank: i + 1,
			Of:   len(ranked),
		}))
	}
	return admitted, deferred
}

// Less reports whether a ranks ahead of b.
func Less(a, b model.Decision) bool {
	if a.EffectivePriority != b.EffectivePriority {
		return a.EffectivePriority > b.EffectivePriority
	}
	if a.NeverRefreshed != b.NeverRefreshed {
		return a.NeverRefreshed
	}
	if !a.NeverRefreshed && a.Staleness != b.Staleness {
		return a.Staleness > b.Staleness
	}
	return a.Symbol < b.Symbol
}

// Symbols lists the symbols of ds in order.
func Symbols(ds []model.Decision) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Symbol)
	}
	return out
}
