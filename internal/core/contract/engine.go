package contract

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// Options tune a validation run.
type Options struct {
	// Threshold is the severity at or above which a failed clause fails
	// the whole run. Defaults to WARNING.
	Threshold domain.Severity

	// Tags, when non-empty, restricts the run to clauses carrying at
	// least one of the listed tags. Everything else is skipped.
	Tags []string
}

// Engine executes a resolved plan against a target and aggregates the
// outcomes into a report.
type Engine struct {
	plan      *Plan
	log       *logrus.Logger
	threshold domain.Severity
	tags      map[string]bool
}

// NewEngine builds an engine for the given plan.
func NewEngine(plan *Plan, log *logrus.Logger, opts Options) *Engine {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = domain.Warning
	}
	var tags map[string]bool
	if len(opts.Tags) > 0 {
		tags = make(map[string]bool, len(opts.Tags))
		for _, t := range opts.Tags {
			tags[t] = true
		}
	}
	return &Engine{plan: plan, log: log, threshold: threshold, tags: tags}
}

// Validate starts the target, runs every planned phase in timeline order
// and stops the target again, even on early failure. The returned report
// covers every clause that was reached; the error covers environment
// failures, not clause outcomes.
func (e *Engine) Validate(ctx context.Context, target Target) (*domain.Report, error) {
	if err := target.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start validation target: %w", err)
	}
	defer target.Stop(context.WithoutCancel(ctx))

	report := &domain.Report{Threshold: e.threshold}
	passed := make(map[string]bool)

	for _, phase := range domain.Timeline {
		bucket := e.plan.PhaseClauses(phase)
		if len(bucket) == 0 {
			continue
		}

		started := time.Now()
		pr := domain.PhaseResult{Phase: phase}
		for _, clause := range bucket {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			res := e.runClause(ctx, clause, target, passed)
			if res.Outcome == domain.Pass {
				passed[clause.Name] = true
			}
			pr.Results = append(pr.Results, res)
		}
		pr.Elapsed = time.Since(started)
		report.Phases = append(report.Phases, pr)
	}
	return report, nil
}

func (e *Engine) runClause(ctx context.Context, clause *Clause, target Target, passed map[string]bool) domain.ClauseResult {
	res := domain.ClauseResult{
		Name:     clause.Name,
		Title:    clause.Title,
		Severity: clause.Severity,
	}

	if e.tags != nil && !e.selected(clause) {
		res.Outcome = domain.Skip
		res.Message = "not selected by the tag filter"
		return res
	}
	for _, dep := range clause.Dependencies {
		if !passed[dep] {
			res.Outcome = domain.Skip
			res.Message = fmt.Sprintf("%s did not pass", dep)
			return res
		}
	}

	entry := e.log.WithField("clause", clause.Name)
	entry.Debugf("evaluating: %s", clause.Title)

	err := evalSafely(ctx, clause.Eval, target)
	switch cause := err.(type) {
	case nil:
		res.Outcome = domain.Pass
	case *CheckFailure:
		res.Outcome = domain.Fail
		res.Message = cause.Msg
		entry.WithField("severity", clause.Severity).Warnf("clause failed: %s", cause.Msg)
	case *SkipCheck:
		res.Outcome = domain.Skip
		res.Message = cause.Reason
	default:
		res.Outcome = domain.Error
		res.Message = err.Error()
		entry.WithError(err).Warn("clause raised an unexpected error")
	}
	return res
}

func (e *Engine) selected(clause *Clause) bool {
	for _, t := range clause.Tags {
		if e.tags[t] {
			return true
		}
	}
	return false
}

// evalSafely shields the engine from panicking clauses; a panic is
// reported as an unexpected error on that clause alone.
func evalSafely(ctx context.Context, eval EvalFunc, target Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("clause panicked: %v", r)
		}
	}()
	return eval(ctx, target)
}
