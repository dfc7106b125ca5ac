// Package contract implements the declarative validation framework: a
// contract is a set of clauses, each an independent acceptance check with
// severity, lifecycle phase and dependency metadata. A registry collects
// clause definitions, a resolver turns them into a cycle-free,
// phase-bucketed execution plan, and the engine runs the plan against a
// live sandbox.
package contract

import (
	"context"
	"fmt"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/sandbox"
)

// Target is the environment a clause evaluates against. *sandbox.Sandbox
// is the production implementation; tests substitute fakes.
type Target interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)

	// App returns the application container handle; nil before Start.
	App() *sandbox.Handle

	Config() domain.ApplicationConfiguration

	// Host and AppPort locate the application's host-mapped port.
	Host() string
	AppPort() int
}

// CheckFailure is an assertion failure inside a clause: the condition was
// evaluated and does not hold. Distinct from unexpected errors, which the
// engine records as ERROR.
type CheckFailure struct {
	Msg string
}

func (f *CheckFailure) Error() string { return f.Msg }

// Failf builds a clause assertion failure.
func Failf(format string, args ...any) error {
	return &CheckFailure{Msg: fmt.Sprintf(format, args...)}
}

// SkipCheck is a declared, non-erroneous absence of evaluation.
type SkipCheck struct {
	Reason string
}

func (s *SkipCheck) Error() string { return s.Reason }

// EvalFunc evaluates one clause against the target. A nil return is PASS,
// a *CheckFailure is FAIL, a *SkipCheck is SKIP, anything else is ERROR.
type EvalFunc func(ctx context.Context, t Target) error

// Definition declares one clause. References to other clauses are by
// name and resolved later, so third-party clauses can attach themselves
// to built-in ones without editing them.
type Definition struct {
	Name        string
	Title       string
	Description string

	Phase    domain.Phase
	Severity domain.Severity
	Tags     []string

	// Dependencies must PASS for this clause to run; otherwise it is
	// skipped.
	Dependencies []string

	// Dependents is the inverse: this clause becomes a dependency of
	// every clause named here.
	Dependents []string

	// Before and After order clauses within a phase without gating
	// outcomes: this clause runs before every clause in Before and
	// after every clause in After.
	Before []string
	After  []string

	Eval EvalFunc
}

// Registry collects clause definitions before resolution. Field
// validation happens here, at registration time.
type Registry struct {
	defs  []Definition
	names map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Add validates and records a definition. Definitions keep their
// registration order, which resolution uses as the ordering tiebreaker.
func (r *Registry) Add(def Definition) error {
	switch {
	case def.Name == "":
		return fmt.Errorf("clause must have a name")
	case def.Title == "":
		return fmt.Errorf("clause %q must have a title", def.Name)
	case def.Description == "":
		return fmt.Errorf("clause %q must have a description", def.Name)
	case def.Eval == nil:
		return fmt.Errorf("clause %q must have an evaluation function", def.Name)
	}
	if !def.Phase.Valid() {
		return fmt.Errorf("clause %q does not have a valid lifecycle point", def.Name)
	}
	if def.Severity == 0 {
		def.Severity = domain.Unused
	}
	if !def.Severity.Valid() {
		return fmt.Errorf("clause %q does not have a valid severity", def.Name)
	}
	if r.names[def.Name] {
		return fmt.Errorf("clause %q is already registered", def.Name)
	}

	r.names[def.Name] = true
	r.defs = append(r.defs, def)
	return nil
}

// MustAdd is Add for statically known definitions.
func (r *Registry) MustAdd(def Definition) {
	if err := r.Add(def); err != nil {
		panic(err)
	}
}

// Has reports whether a clause name is registered.
func (r *Registry) Has(name string) bool { return r.names[name] }

// Len returns the number of registered clauses.
func (r *Registry) Len() int { return len(r.defs) }
