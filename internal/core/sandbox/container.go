package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

// Handle is a thin lifecycle wrapper around one runtime container. The id
// is assigned exactly once at creation and cleared on removal; Kill and
// Remove are no-ops once the id is cleared.
type Handle struct {
	rt   ports.ContainerRuntime
	log  *logrus.Logger
	id   string
	name string
	host string
}

// NewHandle wraps the shared runtime connection. The container itself is
// not created until Create is called.
func NewHandle(rt ports.ContainerRuntime, log *logrus.Logger) *Handle {
	return &Handle{rt: rt, log: log, host: rt.Host()}
}

// ID returns the runtime identifier, or "" if creation never succeeded.
func (h *Handle) ID() string { return h.id }

// Name returns the container name given at creation.
func (h *Handle) Name() string { return h.name }

// Host returns the network address of the daemon-visible interface.
func (h *Handle) Host() string { return h.host }

// Create allocates the underlying container. The creation call itself
// runs detached from ctx's cancellation: if a cancellation arrives while
// the daemon is creating the container, the id is still recorded on the
// handle before the cancellation error surfaces, so teardown can find and
// remove it. A cancellation arriving strictly before the call returns
// without creating anything.
func (h *Handle) Create(ctx context.Context, spec domain.ContainerSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := h.rt.CreateContainer(context.WithoutCancel(ctx), spec)
	if err != nil {
		return &CreateError{Name: spec.Name, Err: err}
	}
	h.id = id
	h.name = spec.Name

	return ctx.Err()
}

// Start begins execution of the container.
func (h *Handle) Start(ctx context.Context) error {
	if h.id == "" {
		return &StartError{Name: h.name, Err: errors.New("container was never created")}
	}
	if err := h.rt.StartContainer(ctx, h.id); err != nil {
		return &StartError{Name: h.name, Err: err}
	}
	h.log.WithField("container", h.name).Info("starting container")
	return nil
}

// Kill stops the container's process. Silent no-op once removed, since
// teardown occasionally kills containers that are already gone.
func (h *Handle) Kill(ctx context.Context) error {
	if h.id == "" {
		return nil
	}
	return h.rt.KillContainer(ctx, h.id)
}

// Remove deletes the container and clears the id. Silent no-op when
// called twice.
func (h *Handle) Remove(ctx context.Context) error {
	if h.id == "" {
		return nil
	}
	if err := h.rt.RemoveContainer(ctx, h.id); err != nil {
		return err
	}
	h.id = ""
	return nil
}

// Running queries the live state; false if the container was never
// created or the daemon no longer knows it.
func (h *Handle) Running(ctx context.Context) bool {
	if h.id == "" {
		return false
	}
	st, err := h.rt.InspectState(ctx, h.id)
	if err != nil {
		return false
	}
	return st.Running
}

// Exec runs a command inside the container.
func (h *Handle) Exec(ctx context.Context, cmd []string) (domain.ExecResult, error) {
	if h.id == "" {
		return domain.ExecResult{}, fmt.Errorf("container %q was never created", h.name)
	}
	return h.rt.Exec(ctx, h.id, cmd)
}

// ExtractPath reads a file or directory out of the container's filesystem
// as a navigable archive. The error satisfies
// errors.Is(err, ports.ErrNotFound) when the path does not resolve.
func (h *Handle) ExtractPath(ctx context.Context, path string) (*ArchiveView, error) {
	if h.id == "" {
		return nil, fmt.Errorf("container %q was never created", h.name)
	}
	rc, err := h.rt.CopyFrom(ctx, h.id, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return NewArchiveView(rc)
}

// DumpLogs copies the container's current stdout/stderr buffer to the log
// sink without following.
func (h *Handle) DumpLogs(ctx context.Context) {
	rc, err := h.rt.Logs(ctx, h.id, false)
	if err != nil {
		return
	}
	defer rc.Close()
	h.copyLogLines(rc)
}

// StreamLogs copies the container's stdout/stderr to the log sink in a
// background goroutine until ctx is cancelled or the container no longer
// exists. Idle-connection timeouts from the daemon are retried; a
// not-found answer means the container was removed and ends the stream
// silently. The goroutine works from the id captured at launch and never
// touches the handle again, so Remove may run concurrently with it.
func (h *Handle) StreamLogs(ctx context.Context) {
	id := h.id
	if id == "" {
		return
	}
	go func() {
		for {
			rc, err := h.rt.Logs(ctx, id, true)
			if err != nil {
				return
			}
			h.copyLogLines(rc)
			rc.Close()

			select {
			case <-ctx.Done():
				return
			default:
			}
			if st, err := h.rt.InspectState(ctx, id); err != nil || !st.Running {
				return
			}
			// A follow stream that ends while the container is still
			// running was cut by an idle timeout; reattach.
			time.Sleep(time.Second)
		}
	}()
}

func (h *Handle) copyLogLines(rc io.Reader) {
	entry := h.log.WithField("container", h.name)
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		entry.Debug(sc.Text())
	}
	// A read error here is either an idle timeout, which the follow loop
	// handles by reattaching, or the stream ending with the container.
	if err := sc.Err(); err != nil && !isTimeout(err) {
		entry.WithError(err).Debug("log stream ended")
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// ProbeContainer is a minimal container placed on another container's
// network stack, used to test whether a service is listening on a port
// from inside that namespace. Connecting to the host-mapped port from the
// outside is not enough: the mapping accepts connections even when
// nothing is listening inside.
type ProbeContainer struct {
	*Handle
	port int
}

// NewProbeContainer wraps a handle for the probe image.
func NewProbeContainer(rt ports.ContainerRuntime, log *logrus.Logger, port int) *ProbeContainer {
	return &ProbeContainer{Handle: NewHandle(rt, log), port: port}
}

// ProbePort returns true iff a TCP connect to the application port
// succeeds from inside the shared network namespace.
func (p *ProbeContainer) ProbePort(ctx context.Context) bool {
	res, err := p.Exec(ctx, []string{"/probe", "localhost", strconv.Itoa(p.port)})
	return err == nil && res.ExitCode == 0
}
