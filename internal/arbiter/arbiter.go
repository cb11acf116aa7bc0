// Package arbiter selects which handler answers a turn from the set of
// per-handler CommandAnalysisResults, applying a fixed priority order:
// STOP/DEBUG wins outright, then confidence tier, then followup
// eligibility, then a priority/current-handler/report-order tiebreak.
package arbiter

import "github.com/mark3labs/dialogia/internal/dialogue"

// Candidate pairs a handler with the analysis it produced for the current
// turn.
type Candidate struct {
	Handler  dialogue.Handler
	Analysis dialogue.CommandAnalysisResult
}

// Decision is the arbiter's verdict: either a selected candidate, or
// neither (Selected == nil), meaning the "didn't understand" fallback
// applies.
type Decision struct {
	Selected *Candidate
}

// Select picks a winner from candidates, given the handler that currently
// owns the conversation (curHandler may be "" if none does).
//
// STOP or DEBUG always wins outright, regardless of anything else. Among
// the rest, the highest confidence tier (AnalysisType.Rank) wins, but a
// FOLLOWUP analysis is only eligible when it comes from curHandler — a
// followup from any other handler is discarded before ranking. Ties at
// the winning tier are broken by Priority(), then by whichever tied
// candidate is curHandler, then by report order (first reporter). If no
// candidate survives, Selected is nil and the caller renders the "didn't
// understand" apology.
func Select(candidates []Candidate, curHandler string) Decision {
	var stopOrDebug *Candidate
	eligible := make([]Candidate, 0, len(candidates))

	for i := range candidates {
		c := candidates[i]
		switch c.Analysis.Type {
		case dialogue.AnalysisStop, dialogue.AnalysisDebug:
			if stopOrDebug == nil {
				cc := c
				stopOrDebug = &cc
			}
			continue
		}
		if c.Analysis.Type.IsFollowup() && c.Handler.UniqueID() != curHandler {
			continue // followup from a handler that doesn't own the conversation
		}
		eligible = append(eligible, c)
	}

	if stopOrDebug != nil {
		return Decision{Selected: stopOrDebug}
	}

	best := bestRank(eligible)
	if best <= dialogue.AnalysisOutOfDomain.Rank() {
		return Decision{} // nothing beats OUT_OF_DOMAIN
	}

	var winner *Candidate
	for i := range eligible {
		c := eligible[i]
		if c.Analysis.Type.Rank() != best {
			continue
		}
		if winner == nil {
			cc := c
			winner = &cc
			continue
		}
		if beats(c, *winner, curHandler) {
			cc := c
			winner = &cc
		}
	}
	return Decision{Selected: winner}
}

func bestRank(candidates []Candidate) int {
	best := 0
	for _, c := range candidates {
		if r := c.Analysis.Type.Rank(); r > best {
			best = r
		}
	}
	return best
}

// beats reports whether challenger should replace incumbent under the
// tiebreak chain: higher Priority() wins; a Priority tie goes to whichever
// one is curHandler; otherwise the incumbent (the earlier reporter) stands.
func beats(challenger, incumbent Candidate, curHandler string) bool {
	cp, ip := challenger.Handler.Priority(), incumbent.Handler.Priority()
	if cp != ip {
		return cp > ip
	}
	if challenger.Handler.UniqueID() == curHandler && incumbent.Handler.UniqueID() != curHandler {
		return true
	}
	return false
}
