package contract

import (
	"sort"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// Clause is a resolved definition. Dependencies holds the canonical
// outcome-gating set after inverse edges have been folded in.
type Clause struct {
	Definition
	Dependencies []string
}

// Plan is a frozen, cycle-free execution plan: clauses bucketed by phase,
// each bucket in a deterministic order that respects every dependency and
// ordering edge.
type Plan struct {
	buckets map[domain.Phase][]*Clause
}

// PhaseClauses returns the ordered clauses scheduled for p.
func (pl *Plan) PhaseClauses(p domain.Phase) []*Clause {
	return pl.buckets[p]
}

// Len returns the total number of planned clauses.
func (pl *Plan) Len() int {
	n := 0
	for _, b := range pl.buckets {
		n += len(b)
	}
	return n
}

// Resolve turns the registry into an execution plan. Resolution folds
// inverse edges (Dependents, After) into their canonical direction,
// verifies every reference, rejects cycles and phase-order violations,
// and orders each phase bucket topologically with registration order as
// the tiebreaker.
func Resolve(r *Registry) (*Plan, error) {
	clauses := make(map[string]*Clause, len(r.defs))
	order := make([]string, 0, len(r.defs))
	for i := range r.defs {
		def := r.defs[i]
		clauses[def.Name] = &Clause{
			Definition:   def,
			Dependencies: append([]string(nil), def.Dependencies...),
		}
		order = append(order, def.Name)
	}

	// preds[x] holds the clauses that must run before x.
	preds := make(map[string][]string, len(clauses))

	addPred := func(before, after string) {
		for _, p := range preds[after] {
			if p == before {
				return
			}
		}
		preds[after] = append(preds[after], before)
	}

	check := func(owner, ref string) error {
		if _, ok := clauses[ref]; !ok {
			return &UnknownClauseError{Clause: owner, Ref: ref}
		}
		return nil
	}

	for _, name := range order {
		c := clauses[name]
		for _, dep := range c.Definition.Dependencies {
			if err := check(name, dep); err != nil {
				return nil, err
			}
			addPred(dep, name)
		}
		for _, dependent := range c.Dependents {
			if err := check(name, dependent); err != nil {
				return nil, err
			}
			target := clauses[dependent]
			target.Dependencies = appendUnique(target.Dependencies, name)
			addPred(name, dependent)
		}
		for _, succ := range c.Before {
			if err := check(name, succ); err != nil {
				return nil, err
			}
			addPred(name, succ)
		}
		for _, pred := range c.After {
			if err := check(name, pred); err != nil {
				return nil, err
			}
			addPred(pred, name)
		}
	}

	// A clause can only be preceded by clauses in the same or an earlier
	// phase; with the folded edges this also covers dependency gating.
	for _, name := range order {
		c := clauses[name]
		for _, p := range preds[name] {
			if clauses[p].Phase > c.Phase {
				return nil, &PhaseOrderError{
					Clause:      name,
					ClausePhase: c.Phase,
					Dep:         p,
					DepPhase:    clauses[p].Phase,
				}
			}
		}
	}

	if cycle := findCycle(order, preds); cycle != nil {
		return nil, &CircularDependencyError{Path: cycle}
	}

	for _, phase := range domain.SingularPhases {
		var names []string
		for _, name := range order {
			if clauses[name].Phase == phase {
				names = append(names, name)
			}
		}
		if len(names) > 1 {
			sort.Strings(names)
			return nil, &DuplicateSingularClauseError{Phase: phase, Clauses: names}
		}
	}

	plan := &Plan{buckets: make(map[domain.Phase][]*Clause)}
	for _, phase := range domain.Timeline {
		bucket, err := orderPhase(phase, order, clauses, preds)
		if err != nil {
			return nil, err
		}
		if len(bucket) > 0 {
			plan.buckets[phase] = bucket
		}
	}
	return plan, nil
}

// orderPhase topologically sorts the clauses of one phase, honoring only
// the predecessor edges internal to it. Edges from earlier phases are
// satisfied by phase iteration order. Ready clauses are emitted in
// registration order.
func orderPhase(phase domain.Phase, order []string, clauses map[string]*Clause, preds map[string][]string) ([]*Clause, error) {
	var members []string
	inPhase := make(map[string]bool)
	for _, name := range order {
		if clauses[name].Phase == phase {
			members = append(members, name)
			inPhase[name] = true
		}
	}

	indegree := make(map[string]int, len(members))
	succs := make(map[string][]string)
	for _, name := range members {
		for _, p := range preds[name] {
			if inPhase[p] {
				indegree[name]++
				succs[p] = append(succs[p], name)
			}
		}
	}

	var bucket []*Clause
	emitted := make(map[string]bool)
	for len(bucket) < len(members) {
		progressed := false
		for _, name := range members {
			if emitted[name] || indegree[name] > 0 {
				continue
			}
			emitted[name] = true
			bucket = append(bucket, clauses[name])
			for _, s := range succs[name] {
				indegree[s]--
			}
			progressed = true
		}
		if !progressed {
			// Unreachable once findCycle has passed; guard anyway.
			var stuck []string
			for _, name := range members {
				if !emitted[name] {
					stuck = append(stuck, name)
				}
			}
			return nil, &CircularDependencyError{Path: stuck}
		}
	}
	return bucket, nil
}

// findCycle runs a DFS over the predecessor edges and returns the clause
// names along the first cycle found, with the entry point repeated at the
// end, or nil if the graph is acyclic.
func findCycle(order []string, preds map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = gray
		stack = append(stack, name)
		for _, p := range preds[name] {
			switch color[p] {
			case gray:
				cycle := []string{p}
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i])
					if stack[i] == p {
						break
					}
				}
				// Reverse into execution order so the path reads
				// first-to-last.
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			case white:
				if cycle := visit(p); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range order {
		if color[name] == white {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
