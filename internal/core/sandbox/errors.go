package sandbox

import "fmt"

// ConfigError marks bad or missing sandbox configuration. Fatal,
// surfaced before any container is created.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid sandbox configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid sandbox configuration: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CreateError marks a container creation the runtime rejected.
type CreateError struct {
	Name string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("could not create container %q: %v", e.Name, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// StartError marks a container start the runtime rejected.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("could not start container %q: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// StartupTimeoutError means the application never began listening on its
// port within the polling budget.
type StartupTimeoutError struct {
	Attempts int
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("the application server timed out after %d attempts", e.Attempts)
}

// SupportDiedError means the support server container stopped while the
// sandbox was still waiting for the application to come up.
type SupportDiedError struct {
	Name string
}

func (e *SupportDiedError) Error() string {
	return fmt.Sprintf("support container %q stopped prematurely", e.Name)
}

// UnsupportedVersionError means the daemon version is outside the
// supported range and ForceVersion was not set.
type UnsupportedVersionError struct {
	Found     string
	Supported string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("runtime daemon version %s is outside the supported range %q (use force-version to run anyway)",
		e.Found, e.Supported)
}
