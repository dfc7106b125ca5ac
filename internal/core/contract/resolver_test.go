package contract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

func noopEval(ctx context.Context, t Target) error { return nil }

func def(name string, phase domain.Phase, mutate func(*Definition)) Definition {
	d := Definition{
		Name:        name,
		Title:       name,
		Description: name,
		Phase:       phase,
		Severity:    domain.Warning,
		Eval:        noopEval,
	}
	if mutate != nil {
		mutate(&d)
	}
	return d
}

func planNames(t *testing.T, plan *Plan, phase domain.Phase) []string {
	t.Helper()
	var names []string
	for _, c := range plan.PhaseClauses(phase) {
		names = append(names, c.Name)
	}
	return names
}

func TestResolveKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("c", domain.PostStart, nil)))
	require.NoError(t, r.Add(def("a", domain.PostStart, nil)))
	require.NoError(t, r.Add(def("b", domain.PostStart, nil)))

	plan, err := Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, planNames(t, plan, domain.PostStart))
}

func TestResolveOrdersAfterEdges(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("c", domain.PostStart, func(d *Definition) {
		d.After = []string{"b"}
	})))
	require.NoError(t, r.Add(def("b", domain.PostStart, nil)))

	plan, err := Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, planNames(t, plan, domain.PostStart))
}

func TestResolveOrdersBeforeEdges(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("late", domain.PostStart, nil)))
	require.NoError(t, r.Add(def("early", domain.PostStart, func(d *Definition) {
		d.Before = []string{"late"}
	})))

	plan, err := Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, planNames(t, plan, domain.PostStart))
}

func TestResolveOrdersAcrossPhases(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("a", domain.PreStart, nil)))
	require.NoError(t, r.Add(def("c", domain.PostStart, func(d *Definition) {
		d.After = []string{"b"}
	})))
	require.NoError(t, r.Add(def("b", domain.PostStart, func(d *Definition) {
		d.Dependencies = []string{"a"}
	})))

	plan, err := Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, planNames(t, plan, domain.PreStart))
	assert.Equal(t, []string{"b", "c"}, planNames(t, plan, domain.PostStart))
}

func TestResolveFoldsDependents(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("target", domain.PostStart, nil)))
	require.NoError(t, r.Add(def("gate", domain.PostStart, func(d *Definition) {
		d.Dependents = []string{"target"}
	})))

	plan, err := Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"gate", "target"}, planNames(t, plan, domain.PostStart))

	var target *Clause
	for _, c := range plan.PhaseClauses(domain.PostStart) {
		if c.Name == "target" {
			target = c
		}
	}
	require.NotNil(t, target)
	assert.Contains(t, target.Dependencies, "gate")
}

func TestResolveDetectsCycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("a", domain.PostStart, func(d *Definition) {
		d.Dependencies = []string{"b"}
	})))
	require.NoError(t, r.Add(def("b", domain.PostStart, func(d *Definition) {
		d.Dependencies = []string{"c"}
	})))
	require.NoError(t, r.Add(def("c", domain.PostStart, func(d *Definition) {
		d.Dependencies = []string{"a"}
	})))

	_, err := Resolve(r)
	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycleErr.Path)
	assert.Contains(t, err.Error(), "a->b->c->a")
}

func TestResolveRejectsUnknownReference(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("a", domain.PostStart, func(d *Definition) {
		d.Dependencies = []string{"missing"}
	})))

	_, err := Resolve(r)
	var unknownErr *UnknownClauseError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "a", unknownErr.Clause)
	assert.Equal(t, "missing", unknownErr.Ref)
}

func TestResolveRejectsLaterPhaseDependency(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("early", domain.PreStart, func(d *Definition) {
		d.Dependencies = []string{"late"}
	})))
	require.NoError(t, r.Add(def("late", domain.PostStart, nil)))

	_, err := Resolve(r)
	var phaseErr *PhaseOrderError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "early", phaseErr.Clause)
	assert.Equal(t, "late", phaseErr.Dep)
}

func TestResolveRejectsDuplicateSingularClause(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(def("start-one", domain.Start, nil)))
	require.NoError(t, r.Add(def("start-two", domain.Start, nil)))

	_, err := Resolve(r)
	var dupErr *DuplicateSingularClauseError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, domain.Start, dupErr.Phase)
	assert.ElementsMatch(t, []string{"start-one", "start-two"}, dupErr.Clauses)
}

func TestRegistryRejectsIncompleteDefinitions(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Add(def("", domain.PostStart, nil)))
	assert.Error(t, r.Add(def("no-title", domain.PostStart, func(d *Definition) {
		d.Title = ""
	})))
	assert.Error(t, r.Add(def("no-eval", domain.PostStart, func(d *Definition) {
		d.Eval = nil
	})))
	assert.Error(t, r.Add(def("bad-phase", domain.Phase(7), nil)))

	require.NoError(t, r.Add(def("dup", domain.PostStart, nil)))
	assert.Error(t, r.Add(def("dup", domain.PostStart, nil)))
}

func TestBuiltinsResolve(t *testing.T) {
	plan, err := Resolve(Builtins())
	require.NoError(t, err)
	assert.Equal(t, Builtins().Len(), plan.Len())
	assert.Len(t, plan.PhaseClauses(domain.Start), 1)
	assert.Len(t, plan.PhaseClauses(domain.Stop), 1)
}
