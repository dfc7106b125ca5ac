package ports

import "errors"

// Sentinel errors the runtime adapter wraps so the core can classify
// daemon failures without importing the SDK.
var (
	// ErrNotFound marks paths or containers the daemon cannot resolve.
	ErrNotFound = errors.New("not found")

	// ErrBusy marks removal attempts on a still-running container.
	ErrBusy = errors.New("container is running")
)
