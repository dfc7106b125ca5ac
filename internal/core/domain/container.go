package domain

// ContainerSpec describes a container to be created by the runtime.
// This abstracts us from the Docker SDK's own request types, so the core
// could drive Podman or another daemon without changing business logic.
type ContainerSpec struct {
	Image string
	Name  string

	// Env holds environment variables as KEY=VALUE pairs.
	Env []string

	Cmd []string

	// ExposedPorts lists container ports, e.g. "8080/tcp".
	ExposedPorts []string

	// PortBindings maps a container port ("8080/tcp") to a host port.
	PortBindings map[string]int

	// Binds are host:container volume bindings.
	Binds []string

	// NetworkMode may alias this container onto another container's
	// network namespace ("container:<id>").
	NetworkMode string
}

// ContainerState is the live state of a container as reported by the
// runtime daemon.
type ContainerState struct {
	Running  bool
	ExitCode int
}

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Output   string
}

// VersionInfo identifies the runtime daemon.
type VersionInfo struct {
	Version    string
	APIVersion string
}
