package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

func TestHandleCreateRecordsIDWhenCancelledMidCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt := newFakeRuntime()
	rt.createHook = func(spec domain.ContainerSpec) {
		// Simulate a cancellation arriving while the daemon call is in
		// flight.
		cancel()
	}

	h := NewHandle(rt, testLogger())
	err := h.Create(ctx, domain.ContainerSpec{Image: "app:latest", Name: "app"})

	require.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, h.ID(), "the id must be recorded so teardown can remove the container")
}

func TestHandleCreateSkipsWhenAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := newFakeRuntime()

	h := NewHandle(rt, testLogger())
	err := h.Create(ctx, domain.ContainerSpec{Image: "app:latest", Name: "app"})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.ID())
	assert.Zero(t, rt.nextID, "no container may be created after cancellation")
}

func TestHandleStartWithoutCreate(t *testing.T) {
	h := NewHandle(newFakeRuntime(), testLogger())

	var startErr *StartError
	require.ErrorAs(t, h.Start(context.Background()), &startErr)
}

func TestHandleKillAndRemoveAreIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	h := NewHandle(rt, testLogger())
	require.NoError(t, h.Create(context.Background(), domain.ContainerSpec{Image: "app:latest", Name: "app"}))
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, h.Kill(context.Background()))
	require.NoError(t, h.Remove(context.Background()))
	assert.Empty(t, h.ID())

	// Both are silent no-ops once the container is gone.
	require.NoError(t, h.Kill(context.Background()))
	require.NoError(t, h.Remove(context.Background()))
	assert.Len(t, rt.killed, 1)
	assert.Len(t, rt.removed, 1)
}

func TestHandleRunning(t *testing.T) {
	rt := newFakeRuntime()
	h := NewHandle(rt, testLogger())
	assert.False(t, h.Running(context.Background()))

	require.NoError(t, h.Create(context.Background(), domain.ContainerSpec{Image: "app:latest", Name: "app"}))
	assert.False(t, h.Running(context.Background()))

	require.NoError(t, h.Start(context.Background()))
	assert.True(t, h.Running(context.Background()))

	require.NoError(t, h.Kill(context.Background()))
	assert.False(t, h.Running(context.Background()))
}

func TestHandleExtractPath(t *testing.T) {
	rt := newFakeRuntime()
	rt.copyFn = func(id, path string) (io.ReadCloser, error) {
		return io.NopCloser(tarStream(t, map[string]string{"request.log": "GET /\n"}, nil)), nil
	}

	h := NewHandle(rt, testLogger())
	require.NoError(t, h.Create(context.Background(), domain.ContainerSpec{Image: "app:latest", Name: "app"}))

	view, err := h.ExtractPath(context.Background(), "/var/log/app/request.log")
	require.NoError(t, err)

	data, err := view.ReadFile("request.log")
	require.NoError(t, err)
	assert.Equal(t, "GET /\n", string(data))
}

// bareStreamRuntime has no locking on the paths the log streamer walks,
// so any handle state shared between the streamer and the caller shows up
// as a race.
type bareStreamRuntime struct {
	*fakeRuntime
	inspected chan string
}

func (f *bareStreamRuntime) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("log line\n")), nil
}

func (f *bareStreamRuntime) InspectState(ctx context.Context, id string) (domain.ContainerState, error) {
	select {
	case f.inspected <- id:
	default:
	}
	return domain.ContainerState{Running: true}, nil
}

func TestStreamLogsSurvivesConcurrentRemove(t *testing.T) {
	rt := &bareStreamRuntime{fakeRuntime: newFakeRuntime(), inspected: make(chan string, 1)}
	h := NewHandle(rt, testLogger())
	require.NoError(t, h.Create(context.Background(), domain.ContainerSpec{Image: "app:latest", Name: "app"}))
	require.NoError(t, h.Start(context.Background()))
	id := h.ID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StreamLogs(ctx)

	// Teardown removes the container while the streamer is between its
	// cancellation check and its state poll.
	require.NoError(t, h.Remove(context.Background()))
	assert.Empty(t, h.ID())

	// Drain one poll that may predate the removal, then wait for one that
	// cannot: the streamer must still be using the id it captured at
	// launch, not the cleared handle id.
	timeout := time.After(5 * time.Second)
	for polls := 0; polls < 2; polls++ {
		select {
		case got := <-rt.inspected:
			assert.Equal(t, id, got)
		case <-timeout:
			t.Fatal("log streamer stopped polling the container state")
		}
	}
}

func TestProbePort(t *testing.T) {
	rt := newFakeRuntime()
	var gotCmd []string
	rt.execFn = func(id string, cmd []string) (domain.ExecResult, error) {
		gotCmd = cmd
		return domain.ExecResult{ExitCode: 0}, nil
	}

	p := NewProbeContainer(rt, testLogger(), 8080)
	require.NoError(t, p.Create(context.Background(), domain.ContainerSpec{Image: ProbeImage, Name: "probe"}))

	assert.True(t, p.ProbePort(context.Background()))
	assert.Equal(t, []string{"/probe", "localhost", "8080"}, gotCmd)

	rt.execFn = func(id string, cmd []string) (domain.ExecResult, error) {
		return domain.ExecResult{ExitCode: 1}, nil
	}
	assert.False(t, p.ProbePort(context.Background()))
}

// tarStream builds an in-memory tar archive from file contents and
// directory names.
func tarStream(t *testing.T, files map[string]string, dirs []string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, d := range dirs {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     d,
			Typeflag: tar.TypeDir,
			Mode:     0o755,
		}))
	}
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return &buf
}
