package contract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// hookDescriptor is the YAML schema of a user-supplied clause. Unknown
// keys are rejected so typos surface as load errors instead of silently
// dropped settings.
type hookDescriptor struct {
	Name           string   `yaml:"name"`
	Title          string   `yaml:"title"`
	Description    string   `yaml:"description"`
	LifecyclePoint string   `yaml:"lifecycle_point"`
	ErrorLevel     string   `yaml:"error_level"`
	Command        []string `yaml:"command"`
	Dependencies   []string `yaml:"dependencies"`
	Dependents     []string `yaml:"dependents"`
	Before         []string `yaml:"before"`
	After          []string `yaml:"after"`
	Tags           []string `yaml:"tags"`
}

// HookLoader turns descriptor files into registered clauses whose
// evaluation runs an external program against the sandbox.
type HookLoader struct {
	log        *logrus.Logger
	newCommand func(program string, args ...string) executor.Executor
}

// NewHookLoader builds a loader using the real command executor.
func NewHookLoader(log *logrus.Logger) *HookLoader {
	return &HookLoader{
		log: log,
		newCommand: func(program string, args ...string) executor.Executor {
			return executor.New(program, args...)
		},
	}
}

// LoadDir registers a clause for every .yaml/.yml descriptor directly in
// dir and returns how many it added. Name collisions, with each other or
// with built-in clauses, are load errors.
func (l *HookLoader) LoadDir(reg *Registry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read hook directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := l.load(path)
		if err != nil {
			return 0, fmt.Errorf("invalid hook descriptor %s: %w", path, err)
		}
		if err := reg.Add(def); err != nil {
			return 0, fmt.Errorf("invalid hook descriptor %s: %w", path, err)
		}
		l.log.WithField("clause", def.Name).Debugf("loaded hook from %s", path)
	}
	return len(names), nil
}

func (l *HookLoader) load(path string) (Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Definition{}, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var desc hookDescriptor
	if err := dec.Decode(&desc); err != nil {
		return Definition{}, err
	}
	if desc.LifecyclePoint == "" {
		return Definition{}, fmt.Errorf("lifecycle_point is required")
	}
	phase, err := domain.ParsePhase(desc.LifecyclePoint)
	if err != nil {
		return Definition{}, err
	}

	severity := domain.Unused
	if desc.ErrorLevel != "" {
		severity, err = domain.ParseSeverity(desc.ErrorLevel)
		if err != nil {
			return Definition{}, err
		}
	}

	command := desc.Command
	if len(command) == 0 {
		// Default to an executable next to the descriptor, named after it.
		exe := strings.TrimSuffix(path, filepath.Ext(path))
		info, err := os.Stat(exe)
		if err != nil {
			return Definition{}, fmt.Errorf("no command given and no adjacent executable: %w", err)
		}
		if info.Mode()&0o111 == 0 {
			return Definition{}, fmt.Errorf("adjacent file %s is not executable", exe)
		}
		command = []string{exe}
	}

	return Definition{
		Name:         desc.Name,
		Title:        desc.Title,
		Description:  desc.Description,
		Phase:        phase,
		Severity:     severity,
		Tags:         desc.Tags,
		Dependencies: desc.Dependencies,
		Dependents:   desc.Dependents,
		Before:       desc.Before,
		After:        desc.After,
		Eval:         l.hookEval(command),
	}, nil
}

// hookEval runs the hook program with the sandbox exposed through the
// environment. Exit status zero is a pass, any other exit status is an
// assertion failure carrying the program's output.
func (l *HookLoader) hookEval(command []string) EvalFunc {
	return func(ctx context.Context, t Target) error {
		env := map[string]string{
			"APP_CONTAINER_HOST": t.Host(),
			"APP_PORT":           strconv.Itoa(t.AppPort()),
		}
		if app := t.App(); app != nil {
			env["APP_CONTAINER_ID"] = app.ID()
		}

		result, err := l.newCommand(command[0], command[1:]...).Execute(ctx,
			executor.WithEnv(env),
			executor.WithCapture(false, false, true),
			executor.WithConsoleRedirect(false),
		)
		if result != nil && result.ExitCode == 0 && err == nil {
			return nil
		}
		if result != nil && result.ExitCode > 0 {
			out := strings.TrimSpace(result.Combined)
			if out == "" {
				return Failf("hook exited with status %d", result.ExitCode)
			}
			return Failf("hook exited with status %d:\n%s", result.ExitCode, out)
		}
		return fmt.Errorf("failed to run hook command: %w", err)
	}
}
