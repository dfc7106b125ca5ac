package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func report(results ...ClauseResult) Report {
	return Report{
		Threshold: Warning,
		Phases:    []PhaseResult{{Phase: PostStart, Results: results}},
	}
}

func TestReportSuccess(t *testing.T) {
	assert.True(t, report().Success())

	assert.True(t, report(
		ClauseResult{Severity: Fatal, Outcome: Pass},
		ClauseResult{Severity: Fatal, Outcome: Skip},
	).Success())

	// Failures below the threshold do not fail the run.
	assert.True(t, report(
		ClauseResult{Severity: Unused, Outcome: Fail},
	).Success())

	assert.False(t, report(
		ClauseResult{Severity: Warning, Outcome: Fail},
	).Success())

	// Unexpected errors count like failures.
	assert.False(t, report(
		ClauseResult{Severity: Fatal, Outcome: Error},
	).Success())
}

func TestReportCounts(t *testing.T) {
	r := report(
		ClauseResult{Severity: Warning, Outcome: Pass},
		ClauseResult{Severity: Warning, Outcome: Fail},
		ClauseResult{Severity: Fatal, Outcome: Fail},
		ClauseResult{Severity: Unused, Outcome: Skip},
	)

	assert.Equal(t, 1, r.Count(Pass))
	assert.Equal(t, 2, r.Count(Fail))
	assert.Equal(t, 0, r.Count(Error))
	assert.Equal(t, 1, r.Count(Skip))

	assert.Equal(t, map[Severity]int{Warning: 1, Fatal: 1}, r.SeverityBreakdown())
}
