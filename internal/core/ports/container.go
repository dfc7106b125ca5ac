package ports

import (
	"context"
	"io"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// ContainerRuntime defines the daemon operations the sandbox needs.
// This interface allows us to switch between Docker, Podman, or Kubernetes
// without changing the business logic, and to fake the daemon in tests.
type ContainerRuntime interface {
	// CreateContainer allocates a container and returns its id.
	CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error)

	StartContainer(ctx context.Context, id string) error
	KillContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error

	// InspectState returns the container's live state.
	InspectState(ctx context.Context, id string) (domain.ContainerState, error)

	// Exec runs cmd inside the container and returns its exit status and
	// combined output.
	Exec(ctx context.Context, id string, cmd []string) (domain.ExecResult, error)

	// CopyFrom reads a file or directory out of the container filesystem
	// as a tar stream. The error satisfies errors.Is(err, ErrNotFound)
	// when the path does not resolve.
	CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error)

	// Logs returns the container's stdout/stderr, already demuxed to
	// plain text. With follow, the stream stays open until the container
	// is removed.
	Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error)

	ServerVersion(ctx context.Context) (domain.VersionInfo, error)
	Ping(ctx context.Context) error

	// Host is the network address of the daemon-visible interface, used
	// to reach host-mapped container ports.
	Host() string
}
