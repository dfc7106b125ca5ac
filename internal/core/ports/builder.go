package ports

import "context"

// ContextFile is a file added to a synthetic build context, identified by
// its archive name.
type ContextFile struct {
	Name string
	Path string
}

// BuildContext describes a synthetic image build: an inline Dockerfile
// plus files copied in from the host. Used to layer the application's
// config files on top of the support server's base image.
type BuildContext struct {
	Dockerfile string
	Files      []ContextFile
}

// ImageBuilder defines operations for building container images.
type ImageBuilder interface {
	// BuildFromDir builds an image from a directory containing a
	// Dockerfile and returns the image reference it was tagged with.
	BuildFromDir(ctx context.Context, dir string, tag string) (string, error)

	// BuildFromContext builds an image from a synthetic build context.
	BuildFromContext(ctx context.Context, bc BuildContext, tag string) (string, error)

	// BuildFromRepo clones a git repository and builds the image from its
	// root Dockerfile.
	BuildFromRepo(ctx context.Context, repoURL string, tag string) (string, error)
}
