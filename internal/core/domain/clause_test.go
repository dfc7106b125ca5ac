package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineOrdering(t *testing.T) {
	for i := 1; i < len(Timeline); i++ {
		assert.Less(t, Timeline[i-1], Timeline[i])
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("post_start")
	require.NoError(t, err)
	assert.Equal(t, PostStart, p)
	assert.Equal(t, "Post Start", p.Title())

	_, err = ParsePhase("mid_flight")
	assert.ErrorContains(t, err, "unknown lifecycle point")
}

func TestPhaseSingular(t *testing.T) {
	assert.True(t, Start.Singular())
	assert.True(t, Stop.Singular())
	assert.False(t, PreStart.Singular())
	assert.False(t, PostStart.Singular())
	assert.False(t, PostStop.Singular())
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("FATAL")
	require.NoError(t, err)
	assert.Equal(t, Fatal, s)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err, "severity names are case sensitive")
}

func TestSeverityOrdering(t *testing.T) {
	assert.Less(t, Unused, Warning)
	assert.Less(t, Warning, Fatal)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "PASS", Pass.String())
	assert.Equal(t, "FAIL", Fail.String())
	assert.Equal(t, "ERROR", Error.String())
	assert.Equal(t, "SKIP", Skip.String())
}
