package sandbox

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveViewReadFile(t *testing.T) {
	view, err := NewArchiveView(tarStream(t, map[string]string{
		"app.log.json": `{"message":"hi"}` + "\n",
	}, nil))
	require.NoError(t, err)

	data, err := view.ReadFile("app.log.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi"}`, string(data))

	// Leading slashes and redundant path elements are tolerated.
	_, err = view.ReadFile("/./app.log.json")
	assert.NoError(t, err)
}

func TestArchiveViewReadFileNotFound(t *testing.T) {
	view, err := NewArchiveView(tarStream(t, nil, nil))
	require.NoError(t, err)

	_, err = view.ReadFile("missing.log")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestArchiveViewReadFileOnDirectory(t *testing.T) {
	view, err := NewArchiveView(tarStream(t, nil, []string{"custom_logs/"}))
	require.NoError(t, err)

	_, err = view.ReadFile("custom_logs")
	assert.ErrorContains(t, err, "not a file")
}

func TestArchiveViewList(t *testing.T) {
	view, err := NewArchiveView(tarStream(t, map[string]string{
		"custom_logs/b.log":      "b",
		"custom_logs/a.log.json": `{"x":1}`,
		"custom_logs/sub/c.log":  "c",
	}, []string{"custom_logs/", "custom_logs/sub/"}))
	require.NoError(t, err)

	files, dirs, err := view.List("custom_logs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.log.json", "b.log"}, files)
	assert.Equal(t, []string{"sub"}, dirs)
}

func TestArchiveViewListRoot(t *testing.T) {
	view, err := NewArchiveView(tarStream(t, map[string]string{
		"request.log": "GET /",
	}, []string{"custom_logs/"}))
	require.NoError(t, err)

	files, dirs, err := view.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"request.log"}, files)
	assert.Equal(t, []string{"custom_logs"}, dirs)
}

func TestArchiveViewListMissingDirectory(t *testing.T) {
	view, err := NewArchiveView(tarStream(t, nil, nil))
	require.NoError(t, err)

	_, _, err = view.List("nope")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
