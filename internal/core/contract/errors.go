package contract

import (
	"fmt"
	"strings"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// UnknownClauseError is returned when a clause references a name that no
// registered definition carries.
type UnknownClauseError struct {
	Clause string
	Ref    string
}

func (e *UnknownClauseError) Error() string {
	return fmt.Sprintf("clause %q references unknown clause %q", e.Clause, e.Ref)
}

// CircularDependencyError is returned when the dependency graph contains
// a cycle. Path holds the clause names along the cycle, first repeated
// last.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular clause dependency: %s", strings.Join(e.Path, "->"))
}

// PhaseOrderError is returned when a clause depends on a clause scheduled
// in a later phase.
type PhaseOrderError struct {
	Clause      string
	ClausePhase domain.Phase
	Dep         string
	DepPhase    domain.Phase
}

func (e *PhaseOrderError) Error() string {
	return fmt.Sprintf("clause %q (%s) cannot depend on %q, which runs in the later phase %s",
		e.Clause, e.ClausePhase, e.Dep, e.DepPhase)
}

// DuplicateSingularClauseError is returned when more than one clause is
// registered for a phase that admits only one.
type DuplicateSingularClauseError struct {
	Phase   domain.Phase
	Clauses []string
}

func (e *DuplicateSingularClauseError) Error() string {
	return fmt.Sprintf("phase %s admits a single clause, got %s",
		e.Phase, strings.Join(e.Clauses, ", "))
}
