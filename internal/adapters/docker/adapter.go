package docker

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

// Adapter implements ports.ContainerRuntime using the Docker SDK.
// One adapter (and thus one daemon connection) is shared by every handle
// in a sandbox; access is sequential, so no locking is needed.
type Adapter struct {
	cli  *client.Client
	host string
}

// NewAdapter creates a new Docker adapter instance. Connection parameters
// come from DOCKER_HOST, DOCKER_TLS_VERIFY and DOCKER_CERT_PATH, with the
// local unix socket as the fallback.
func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, host: hostFromDaemonURL(cli.DaemonHost())}, nil
}

// hostFromDaemonURL extracts the daemon-visible network address. Unix
// socket connections map to localhost, since host-mapped ports of locally
// running containers are reachable there.
func hostFromDaemonURL(daemonURL string) string {
	u, err := url.Parse(daemonURL)
	if err != nil || u.Scheme == "unix" || u.Scheme == "npipe" || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}

// Host returns the network address of the daemon-visible interface.
func (a *Adapter) Host() string { return a.host }

// CreateContainer allocates a new container from the spec and returns its id.
func (a *Adapter) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	exposed := nat.PortSet{}
	for _, p := range spec.ExposedPorts {
		exposed[nat.Port(p)] = struct{}{}
	}
	bindings := nat.PortMap{}
	for p, hostPort := range spec.PortBindings {
		bindings[nat.Port(p)] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", hostPort)},
		}
	}

	cfg := &container.Config{
		Image: spec.Image,
		Env:   spec.Env,
		Cmd:   spec.Cmd,
	}
	if len(exposed) > 0 {
		cfg.ExposedPorts = exposed
	}
	hcfg := &container.HostConfig{
		Binds:       spec.Binds,
		NetworkMode: container.NetworkMode(spec.NetworkMode),
	}
	if len(bindings) > 0 {
		hcfg.PortBindings = bindings
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, hcfg, nil, nil, spec.Name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("failed to create container from %q: %w: %s", spec.Image, ports.ErrNotFound, err)
		}
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// StartContainer begins execution of a created container.
func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// KillContainer sends SIGKILL to the container's init process.
func (a *Adapter) KillContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerKill(ctx, id, "KILL"); err != nil {
		return fmt.Errorf("failed to kill container: %w", err)
	}
	return nil
}

// RemoveContainer deletes a stopped container.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{}); err != nil {
		if errdefs.IsConflict(err) {
			return fmt.Errorf("failed to remove container: %w: %s", ports.ErrBusy, err)
		}
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// InspectState queries the live state of a container.
func (a *Adapter) InspectState(ctx context.Context, id string) (domain.ContainerState, error) {
	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return domain.ContainerState{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	st := domain.ContainerState{}
	if info.State != nil {
		st.Running = info.State.Running
		st.ExitCode = info.State.ExitCode
	}
	return st, nil
}

// Exec runs a command inside the container and waits for it, returning
// the exit status and the combined output.
func (a *Adapter) Exec(ctx context.Context, id string, cmd []string) (domain.ExecResult, error) {
	created, err := a.cli.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := a.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("failed to start exec: %w", err)
	}
	defer attach.Close()

	var out strings.Builder
	// Exec streams are multiplexed like log streams; demux both channels
	// into one buffer. EOF means the process has exited.
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil {
		return domain.ExecResult{}, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := a.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return domain.ExecResult{ExitCode: inspect.ExitCode, Output: out.String()}, nil
}

// CopyFrom reads a file or directory out of the container as a tar stream.
func (a *Adapter) CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error) {
	rc, _, err := a.cli.CopyFromContainer(ctx, id, path)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("path %q: %w", path, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to copy from container: %w", err)
	}
	return rc, nil
}

// Logs returns the container's demuxed stdout/stderr stream.
func (a *Adapter) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	raw, err := a.cli.ContainerLogs(ctx, id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container logs: %w", ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	// The daemon multiplexes stdout/stderr into one stream for non-tty
	// containers; hand callers plain text instead.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, raw)
		raw.Close()
		pw.CloseWithError(err)
	}()
	return &logStream{pr: pr, raw: raw}, nil
}

type logStream struct {
	pr  *io.PipeReader
	raw io.ReadCloser
}

func (l *logStream) Read(p []byte) (int, error) { return l.pr.Read(p) }

func (l *logStream) Close() error {
	l.raw.Close()
	return l.pr.Close()
}

// ServerVersion queries the daemon version.
func (a *Adapter) ServerVersion(ctx context.Context) (domain.VersionInfo, error) {
	v, err := a.cli.ServerVersion(ctx)
	if err != nil {
		return domain.VersionInfo{}, fmt.Errorf("failed to get server version: %w", err)
	}
	return domain.VersionInfo{Version: v.Version, APIVersion: v.APIVersion}, nil
}

// Ping verifies that the daemon is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping docker daemon: %w", err)
	}
	return nil
}
