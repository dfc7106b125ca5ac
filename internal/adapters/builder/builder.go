package builder

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-verify/internal/core/ports"
)

// Adapter implements ports.ImageBuilder using the Docker build API.
type Adapter struct {
	cli     *client.Client
	log     *logrus.Logger
	nocache bool
}

// NewBuilderAdapter creates a builder bound to the daemon from the
// environment.
func NewBuilderAdapter(log *logrus.Logger, nocache bool) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, log: log, nocache: nocache}, nil
}

// BuildFromDir builds an image from the Dockerfile in dir and tags it.
func (a *Adapter) BuildFromDir(ctx context.Context, dir string, tag string) (string, error) {
	buildCtx, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	return a.build(ctx, buildCtx, tag)
}

// BuildFromContext builds an image from a synthetic context: an inline
// Dockerfile plus files copied from the host. Used for the support server
// image, which layers the application's config files over a base image.
func (a *Adapter) BuildFromContext(ctx context.Context, bc ports.BuildContext, tag string) (string, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if err := tw.WriteHeader(&tar.Header{
		Name: "Dockerfile",
		Mode: 0o644,
		Size: int64(len(bc.Dockerfile)),
	}); err != nil {
		return "", fmt.Errorf("failed to write build context: %w", err)
	}
	if _, err := tw.Write([]byte(bc.Dockerfile)); err != nil {
		return "", fmt.Errorf("failed to write build context: %w", err)
	}

	for _, f := range bc.Files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read context file: %w", err)
		}
		if err := tw.WriteHeader(&tar.Header{
			Name: f.Name,
			Mode: 0o644,
			Size: int64(len(data)),
		}); err != nil {
			return "", fmt.Errorf("failed to write build context: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return "", fmt.Errorf("failed to write build context: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize build context: %w", err)
	}

	return a.build(ctx, io.NopCloser(&buf), tag)
}

// BuildFromRepo clones a repository and builds an image from its root
// Dockerfile.
func (a *Adapter) BuildFromRepo(ctx context.Context, repoURL string, tag string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "lighthouse-build-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	a.log.WithField("repo", repoURL).Info("cloning repository")
	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone repo: %w", err)
	}

	return a.BuildFromDir(ctx, tmpDir, tag)
}

func (a *Adapter) build(ctx context.Context, buildCtx io.ReadCloser, tag string) (string, error) {
	a.log.WithField("image", tag).Info("building image")
	resp, err := a.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
		NoCache:    a.nocache,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	if err := a.drainBuildOutput(resp.Body); err != nil {
		return "", fmt.Errorf("build of %q failed: %w", tag, err)
	}
	return tag, nil
}

// drainBuildOutput consumes the build's JSON message stream. The build
// API reports failures inside the stream rather than via the HTTP status,
// so an error entry here is the only failure signal.
func (a *Adapter) drainBuildOutput(body io.Reader) error {
	dec := json.NewDecoder(body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read build output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("%s", msg.Error)
		}
		if msg.Stream != "" {
			a.log.Debug(msg.Stream)
		}
	}
}
