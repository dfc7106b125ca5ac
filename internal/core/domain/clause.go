package domain

import "fmt"

// Phase is a point in the sandbox lifecycle at which contract clauses run.
// Phases are ordered; a clause may only depend on clauses whose phase is
// not later than its own.
type Phase int

const (
	PreStart  Phase = 10
	Start     Phase = 20
	PostStart Phase = 30
	Stop      Phase = 40
	PostStop  Phase = 50
)

// Timeline lists all phases in execution order.
var Timeline = []Phase{PreStart, Start, PostStart, Stop, PostStop}

// SingularPhases are phases that admit at most one clause.
var SingularPhases = []Phase{Start, Stop}

var phaseNames = map[Phase]string{
	PreStart:  "pre_start",
	Start:     "start",
	PostStart: "post_start",
	Stop:      "stop",
	PostStop:  "post_stop",
}

var phaseTitles = map[Phase]string{
	PreStart:  "Pre Start",
	Start:     "Start",
	PostStart: "Post Start",
	Stop:      "Stop",
	PostStop:  "Post Stop",
}

func (p Phase) String() string {
	if s := phaseTitles[p]; s != "" {
		return s
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Title returns the human-readable phase name used in reports.
func (p Phase) Title() string { return phaseTitles[p] }

// Name returns the identifier used in hook descriptor files.
func (p Phase) Name() string { return phaseNames[p] }

// Valid reports whether p is one of the five timeline phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// Singular reports whether p admits at most one clause.
func (p Phase) Singular() bool {
	for _, s := range SingularPhases {
		if p == s {
			return true
		}
	}
	return false
}

// ParsePhase maps a descriptor identifier like "post_start" to its Phase.
func ParsePhase(name string) (Phase, error) {
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle point %q", name)
}

// Severity grades how serious a failed clause is. A clause failing at a
// severity at or above the validation threshold fails the whole run.
type Severity int

const (
	// Unused means the container simply isn't taking advantage of an
	// optional part of the contract. Never an error by itself, but other
	// clauses may depend on it.
	Unused Severity = 10

	// Warning means the container will likely exhibit unexpected behavior
	// in production.
	Warning Severity = 20

	// Fatal means the container will not work at all.
	Fatal Severity = 30
)

var severityNames = map[Severity]string{
	Unused:  "UNUSED",
	Warning: "WARNING",
	Fatal:   "FATAL",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Valid reports whether s is one of the three defined levels.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// ParseSeverity maps "UNUSED", "WARNING" or "FATAL" to its Severity.
func ParseSeverity(name string) (Severity, error) {
	for s, n := range severityNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// Outcome is the result of evaluating a single clause.
type Outcome int

const (
	Pass Outcome = iota
	Fail
	Error
	Skip
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Error:
		return "ERROR"
	case Skip:
		return "SKIP"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}
