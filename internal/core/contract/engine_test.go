package contract

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/sandbox"
)

type fakeTarget struct {
	startErr error
	started  bool
	stopped  bool
	cfg      domain.ApplicationConfiguration
	host     string
	port     int
}

func (f *fakeTarget) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeTarget) Stop(ctx context.Context) { f.stopped = true }

func (f *fakeTarget) App() *sandbox.Handle { return nil }

func (f *fakeTarget) Config() domain.ApplicationConfiguration { return f.cfg }

func (f *fakeTarget) Host() string { return f.host }

func (f *fakeTarget) AppPort() int { return f.port }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func mustResolve(t *testing.T, defs ...Definition) *Plan {
	t.Helper()
	r := NewRegistry()
	for _, d := range defs {
		require.NoError(t, r.Add(d))
	}
	plan, err := Resolve(r)
	require.NoError(t, err)
	return plan
}

func findResult(t *testing.T, report *domain.Report, name string) domain.ClauseResult {
	t.Helper()
	for _, ph := range report.Phases {
		for _, cr := range ph.Results {
			if cr.Name == name {
				return cr
			}
		}
	}
	t.Fatalf("no result for clause %q", name)
	return domain.ClauseResult{}
}

func TestValidateClassifiesOutcomes(t *testing.T) {
	plan := mustResolve(t,
		def("passes", domain.PostStart, nil),
		def("fails", domain.PostStart, func(d *Definition) {
			d.Eval = func(ctx context.Context, tg Target) error {
				return Failf("condition does not hold")
			}
		}),
		def("skips", domain.PostStart, func(d *Definition) {
			d.Eval = func(ctx context.Context, tg Target) error {
				return &SkipCheck{Reason: "not applicable"}
			}
		}),
		def("errors", domain.PostStart, func(d *Definition) {
			d.Eval = func(ctx context.Context, tg Target) error {
				return errors.New("boom")
			}
		}),
		def("panics", domain.PostStart, func(d *Definition) {
			d.Eval = func(ctx context.Context, tg Target) error {
				panic("unexpected")
			}
		}),
	)

	target := &fakeTarget{}
	report, err := NewEngine(plan, quietLogger(), Options{}).Validate(context.Background(), target)
	require.NoError(t, err)

	assert.True(t, target.started)
	assert.True(t, target.stopped)

	assert.Equal(t, domain.Pass, findResult(t, report, "passes").Outcome)

	failed := findResult(t, report, "fails")
	assert.Equal(t, domain.Fail, failed.Outcome)
	assert.Equal(t, "condition does not hold", failed.Message)

	skipped := findResult(t, report, "skips")
	assert.Equal(t, domain.Skip, skipped.Outcome)
	assert.Equal(t, "not applicable", skipped.Message)

	assert.Equal(t, domain.Error, findResult(t, report, "errors").Outcome)

	panicked := findResult(t, report, "panics")
	assert.Equal(t, domain.Error, panicked.Outcome)
	assert.Contains(t, panicked.Message, "clause panicked")
}

func TestValidateThresholdSemantics(t *testing.T) {
	failing := def("warns", domain.PostStart, func(d *Definition) {
		d.Severity = domain.Warning
		d.Eval = func(ctx context.Context, tg Target) error {
			return Failf("nope")
		}
	})

	report, err := NewEngine(mustResolve(t, failing), quietLogger(),
		Options{Threshold: domain.Warning}).Validate(context.Background(), &fakeTarget{})
	require.NoError(t, err)
	assert.False(t, report.Success())

	report, err = NewEngine(mustResolve(t, failing), quietLogger(),
		Options{Threshold: domain.Fatal}).Validate(context.Background(), &fakeTarget{})
	require.NoError(t, err)
	assert.True(t, report.Success())
}

func TestValidateSkipsDependentsOfFailedClauses(t *testing.T) {
	plan := mustResolve(t,
		def("gate", domain.PostStart, func(d *Definition) {
			d.Severity = domain.Unused
			d.Eval = func(ctx context.Context, tg Target) error {
				return Failf("feature unused")
			}
		}),
		def("gated", domain.PostStart, func(d *Definition) {
			d.Dependencies = []string{"gate"}
		}),
	)

	report, err := NewEngine(plan, quietLogger(), Options{}).Validate(context.Background(), &fakeTarget{})
	require.NoError(t, err)

	gated := findResult(t, report, "gated")
	assert.Equal(t, domain.Skip, gated.Outcome)
	assert.Equal(t, "gate did not pass", gated.Message)

	// An UNUSED failure below the threshold does not fail the run.
	assert.True(t, report.Success())
}

func TestValidateTagFilter(t *testing.T) {
	plan := mustResolve(t,
		def("tagged", domain.PostStart, func(d *Definition) {
			d.Tags = []string{"logging"}
		}),
		def("untagged", domain.PostStart, nil),
	)

	report, err := NewEngine(plan, quietLogger(),
		Options{Tags: []string{"logging"}}).Validate(context.Background(), &fakeTarget{})
	require.NoError(t, err)

	assert.Equal(t, domain.Pass, findResult(t, report, "tagged").Outcome)

	untagged := findResult(t, report, "untagged")
	assert.Equal(t, domain.Skip, untagged.Outcome)
	assert.Equal(t, "not selected by the tag filter", untagged.Message)
}

func TestValidateStartFailure(t *testing.T) {
	plan := mustResolve(t, def("never-runs", domain.PostStart, nil))
	target := &fakeTarget{startErr: errors.New("daemon unavailable")}

	report, err := NewEngine(plan, quietLogger(), Options{}).Validate(context.Background(), target)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.False(t, target.stopped)
}
