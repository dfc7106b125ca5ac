package domain

import "time"

// ClauseResult is the recorded outcome of a single clause evaluation.
type ClauseResult struct {
	Name     string
	Title    string
	Severity Severity
	Outcome  Outcome

	// Message carries the assertion message for FAIL, the error text for
	// ERROR and the skip reason for SKIP. Empty for PASS.
	Message string
}

// PhaseResult aggregates the clause results of one lifecycle phase.
type PhaseResult struct {
	Phase   Phase
	Results []ClauseResult
	Elapsed time.Duration
}

// Count returns how many clauses in this phase ended with the given outcome.
func (p PhaseResult) Count(o Outcome) int {
	n := 0
	for _, r := range p.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Report is the full result of one validation run.
type Report struct {
	Phases []PhaseResult

	// Threshold is the severity at or above which a FAIL or ERROR fails
	// the whole run.
	Threshold Severity
}

// Success reports whether no clause at severity >= threshold ended FAIL
// or ERROR. Skipped clauses never affect success.
func (r Report) Success() bool {
	for _, ph := range r.Phases {
		for _, cr := range ph.Results {
			if cr.Outcome != Fail && cr.Outcome != Error {
				continue
			}
			if cr.Severity >= r.Threshold {
				return false
			}
		}
	}
	return true
}

// Count returns how many clauses across all phases ended with the outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, ph := range r.Phases {
		n += ph.Count(o)
	}
	return n
}

// SeverityBreakdown counts FAIL and ERROR outcomes per severity level.
func (r Report) SeverityBreakdown() map[Severity]int {
	stats := make(map[Severity]int)
	for _, ph := range r.Phases {
		for _, cr := range ph.Results {
			if cr.Outcome == Fail || cr.Outcome == Error {
				stats[cr.Severity]++
			}
		}
	}
	return stats
}
