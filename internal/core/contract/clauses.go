package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

const (
	// logRoot is where applications are expected to write their logs.
	logRoot = "/var/log/app"

	diagnosticLogPath = logRoot + "/app.log.json"
	accessLogPath     = logRoot + "/request.log"
	customLogPath     = logRoot + "/custom_logs"
)

// acceptedStatusCodes are the responses a container may return from the
// start and stop endpoints. Anything else, a 500 in particular, fails.
var acceptedStatusCodes = []int{
	http.StatusOK,
	http.StatusAccepted,
	http.StatusNotFound,
	http.StatusServiceUnavailable,
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// commonLogFormat matches one line of an Apache Common Log Format access
// log.
var commonLogFormat = regexp.MustCompile(
	`(\S*) (\S*) (\S*) \[([^]]*)\] "([^"]*)" (\S*) (\S*)`)

// diagnosticFields are required on every diagnostic log entry.
var diagnosticFields = []string{"timestamp", "severity", "thread", "message"}

// Builtins returns a registry preloaded with the standard application
// contract.
func Builtins() *Registry {
	r := NewRegistry()
	for _, def := range builtinDefinitions() {
		r.MustAdd(def)
	}
	return r
}

func builtinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "health-checks-enabled",
			Title:       "Health checking enabled",
			Description: "Container can enable health checks in configuration",
			Phase:       domain.PreStart,
			Severity:    domain.Unused,
			Tags:        []string{"health"},
			Eval: func(ctx context.Context, t Target) error {
				if !t.Config().HealthChecksEnabled {
					return Failf("health checks are disabled in the application configuration")
				}
				return nil
			},
		},
		{
			Name:        "hostname",
			Title:       "Hostname",
			Description: "Container must make hostname available through /bin/hostname",
			Phase:       domain.PreStart,
			Severity:    domain.Warning,
			Eval: func(ctx context.Context, t Target) error {
				res, err := t.App().Exec(ctx, []string{"/bin/hostname"})
				if err != nil {
					return fmt.Errorf("failed to execute /bin/hostname: %w", err)
				}
				if res.ExitCode != 0 {
					return Failf("/bin/hostname exited with status %d", res.ExitCode)
				}
				return nil
			},
		},
		{
			Name:        "start-request",
			Title:       "Start request",
			Description: "Container must accept a request on the /_ah/start endpoint",
			Phase:       domain.Start,
			Severity:    domain.Fatal,
			Eval: func(ctx context.Context, t Target) error {
				return checkLifecycleEndpoint(ctx, t, "/_ah/start")
			},
		},
		{
			Name:         "health-check",
			Title:        "Health checking",
			Description:  "Endpoint /_ah/health must respond with status code 200",
			Phase:        domain.PostStart,
			Severity:     domain.Fatal,
			Dependencies: []string{"health-checks-enabled"},
			Tags:         []string{"health"},
			Eval: func(ctx context.Context, t Target) error {
				status, err := get(ctx, t, "/_ah/health")
				if err != nil {
					return Failf("health check request failed: %v", err)
				}
				if status != http.StatusOK {
					return Failf("health check returned status %d, want 200", status)
				}
				return nil
			},
		},
		{
			Name:        "access-log-location",
			Title:       "Access log location",
			Description: "Container should write access logs to " + accessLogPath,
			Phase:       domain.PostStart,
			Severity:    domain.Unused,
			Tags:        []string{"logging"},
			Eval: func(ctx context.Context, t Target) error {
				if _, err := t.App().ExtractPath(ctx, accessLogPath); err != nil {
					return Failf("no log file found at %s", accessLogPath)
				}
				return nil
			},
		},
		{
			Name:         "access-log-format",
			Title:        "Access log format",
			Description:  "Access logs should be in Common or Extended formats",
			Phase:        domain.PostStart,
			Severity:     domain.Warning,
			Dependencies: []string{"access-log-location"},
			Tags:         []string{"logging"},
			Eval: func(ctx context.Context, t Target) error {
				view, err := t.App().ExtractPath(ctx, accessLogPath)
				if err != nil {
					return fmt.Errorf("failed to extract %s: %w", accessLogPath, err)
				}
				data, err := view.ReadFile(path.Base(accessLogPath))
				if err != nil {
					return fmt.Errorf("failed to read access log: %w", err)
				}
				return checkAccessLogFormat(data)
			},
		},
		{
			Name:        "diagnostic-log-location",
			Title:       "Diagnostic log location",
			Description: "Container should write diagnostic logs to " + diagnosticLogPath,
			Phase:       domain.PostStart,
			Severity:    domain.Unused,
			Tags:        []string{"logging"},
			Eval: func(ctx context.Context, t Target) error {
				if _, err := t.App().ExtractPath(ctx, diagnosticLogPath); err != nil {
					return Failf("could not find log file at %s", diagnosticLogPath)
				}
				return nil
			},
		},
		{
			Name:         "diagnostic-log-format",
			Title:        "Diagnostic log format",
			Description:  `Json logs must have "timestamp", "thread", "severity" and "message" fields`,
			Phase:        domain.PostStart,
			Severity:     domain.Warning,
			Dependencies: []string{"diagnostic-log-location"},
			Tags:         []string{"logging"},
			Eval: func(ctx context.Context, t Target) error {
				view, err := t.App().ExtractPath(ctx, diagnosticLogPath)
				if err != nil {
					return fmt.Errorf("failed to extract %s: %w", diagnosticLogPath, err)
				}
				data, err := view.ReadFile(path.Base(diagnosticLogPath))
				if err != nil {
					return fmt.Errorf("failed to read diagnostic log: %w", err)
				}
				return checkJSONLogFormat(data)
			},
		},
		{
			Name:        "custom-log-location",
			Title:       "Custom log location",
			Description: "Custom logs can be written to " + customLogPath,
			Phase:       domain.PostStart,
			Severity:    domain.Unused,
			Tags:        []string{"logging"},
			Eval: func(ctx context.Context, t Target) error {
				if _, err := t.App().ExtractPath(ctx, customLogPath); err != nil {
					return Failf("custom logs directory not found at %s", customLogPath)
				}
				return nil
			},
		},
		{
			Name:         "custom-log-format",
			Title:        "Custom log format",
			Description:  "Custom logs must end in .log or .log.json; json logs must be well formed",
			Phase:        domain.PostStart,
			Severity:     domain.Warning,
			Dependencies: []string{"custom-log-location"},
			Tags:         []string{"logging"},
			Eval:         checkCustomLogs,
		},
		{
			Name:        "stop-request",
			Title:       "Stop request",
			Description: "Container must accept a request on the /_ah/stop endpoint",
			Phase:       domain.Stop,
			Severity:    domain.Warning,
			Eval: func(ctx context.Context, t Target) error {
				return checkLifecycleEndpoint(ctx, t, "/_ah/stop")
			},
		},
	}
}

func get(ctx context.Context, t Target, endpoint string) (int, error) {
	url := fmt.Sprintf("http://%s:%d%s", t.Host(), t.AppPort(), endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func checkLifecycleEndpoint(ctx context.Context, t Target, endpoint string) error {
	status, err := get(ctx, t, endpoint)
	if err != nil {
		return Failf("request to %s failed: %v", endpoint, err)
	}
	for _, ok := range acceptedStatusCodes {
		if status == ok {
			return nil
		}
	}
	return Failf("request to %s returned status %d", endpoint, status)
}

func checkAccessLogFormat(data []byte) error {
	sawLine := false
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		sawLine = true
		if !commonLogFormat.MatchString(line) {
			return Failf("improperly formatted access log line: %q", line)
		}
	}
	if !sawLine {
		return Failf("no access logs found in log file")
	}
	return nil
}

func checkJSONLogFormat(data []byte) error {
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return Failf("improperly formatted log line: %q", line)
		}
		for _, field := range diagnosticFields {
			if _, ok := entry[field]; !ok {
				return Failf("log entry missing %q field: %s", field, line)
			}
		}
		var ts struct {
			Seconds *int64 `json:"seconds"`
			Nanos   *int64 `json:"nanos"`
		}
		if err := json.Unmarshal(entry["timestamp"], &ts); err != nil || ts.Seconds == nil || ts.Nanos == nil {
			return Failf(`timestamps must have "seconds" and "nanos" fields: %s`, line)
		}
	}
	return nil
}

func checkCustomLogs(ctx context.Context, t Target) error {
	view, err := t.App().ExtractPath(ctx, customLogPath)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", customLogPath, err)
	}
	root := path.Base(customLogPath)
	files, dirs, err := view.List(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Failf("custom logs directory not found at %s", customLogPath)
		}
		return err
	}

	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".log.json"):
			data, err := view.ReadFile(path.Join(root, f))
			if err != nil {
				return fmt.Errorf("failed to read custom log %s: %w", f, err)
			}
			if err := checkJSONLogFormat(data); err != nil {
				return err
			}
		case !strings.HasSuffix(f, ".log"):
			return Failf("file %q does not end in .log or .log.json", f)
		}
	}
	if len(dirs) > 0 {
		return Failf("directories inside %s will not have their logs ingested", customLogPath)
	}
	return nil
}
