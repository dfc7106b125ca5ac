// Package sandbox launches a short-lived cluster of cooperating
// containers that emulates the managed platform's production environment:
// a support/API server, the application under test, and a network probe
// sharing the application's network namespace. The cluster is managed as
// a single transactional unit; any failure during startup tears down
// everything that was created.
package sandbox

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

const (
	// SupportBaseImage is the base image for the support/API server; the
	// sandbox layers the application's config files on top of it.
	SupportBaseImage = "lighthouse-support-base"

	// ProbeImage ships the /probe binary used for in-namespace port checks.
	ProbeImage = "lighthouse-probe"

	// ApplicationPort is the port the application is required to listen
	// on inside its container.
	ApplicationPort = 8080

	// DefaultTimeoutAttempts bounds the one-second startup polls.
	DefaultTimeoutAttempts = 30

	// JavaOffset is where Java apps keep their config, relative to the
	// root of the application archive.
	JavaOffset = "WEB-INF/"

	// Naming timestamp layout; naming is functionally unimportant and
	// only keeps the daemon's container/image listings readable.
	timeLayout = "2006.01.02_15.04.05"

	// supportedDaemonVersions is the semver range the sandbox is tested
	// against.
	supportedDaemonVersions = ">= 20.10"
)

// Options configure a Sandbox. At least one of ConfigFile, Image or
// RepoURL must be supplied.
type Options struct {
	// ConfigFile is the application's configuration file, already parsed
	// into Config by the appconfig adapter. The path is still needed to
	// layer the file into the support image.
	ConfigFile string

	// Config is the parsed application configuration. Nil means no
	// config file was supplied and the defaults apply.
	Config *domain.ApplicationConfiguration

	// AppDir is the application root containing the Dockerfile; required
	// when neither Image nor RepoURL is set.
	AppDir string

	// Image is a pre-built application image reference.
	Image string

	// RepoURL builds the application image from a git repository instead
	// of a local directory.
	RepoURL string

	// AppID is the synthetic application id the support server uses to
	// namespace datastore-like state. Defaults to the startup timestamp.
	AppID string

	// AppPort is the host port mapped to the application. Default 8080.
	AppPort int

	// AdminPort is the host port mapped to the support server's admin
	// panel. Default 8000.
	AdminPort int

	// Ports inside the support container. Internal to the cluster, so
	// the defaults rarely need changing.
	InternalAdminPort int
	InternalAPIPort   int
	InternalProxyPort int

	// LogPath is the host directory the application's log volume is
	// bound to. Defaults to a timestamped directory under /tmp.
	LogPath string

	// StoragePath is the host directory backing the support server's
	// service state. Defaults to /tmp/lighthouse/storage.
	StoragePath string

	// RunSupportServer controls whether the support/API server container
	// is part of the cluster.
	RunSupportServer bool

	// TimeoutAttempts bounds the startup poll loop.
	TimeoutAttempts int

	// ForceVersion skips the daemon version check.
	ForceVersion bool
}

func (o *Options) withDefaults(curTime string) Options {
	out := *o
	if out.AppID == "" {
		out.AppID = strconv.FormatInt(time.Now().Unix(), 10)
	}
	if out.AppPort == 0 {
		out.AppPort = 8080
	}
	if out.AdminPort == 0 {
		out.AdminPort = 8000
	}
	if out.InternalAdminPort == 0 {
		out.InternalAdminPort = 32768
	}
	if out.InternalAPIPort == 0 {
		out.InternalAPIPort = 32769
	}
	if out.InternalProxyPort == 0 {
		out.InternalProxyPort = 32770
	}
	if out.LogPath == "" {
		out.LogPath = timestampedName("/tmp/lighthouse/app_logs", curTime)
	}
	if out.StoragePath == "" {
		out.StoragePath = "/tmp/lighthouse/storage"
	}
	if out.TimeoutAttempts == 0 {
		out.TimeoutAttempts = DefaultTimeoutAttempts
	}
	return out
}

type state int

const (
	idle state = iota
	starting
	running
	stopping
)

// Sandbox orchestrates the container cluster. One sandbox instance per
// process lifetime; a single goroutine drives the whole lifecycle.
type Sandbox struct {
	rt      ports.ContainerRuntime
	builder ports.ImageBuilder
	log     *logrus.Logger

	opts    Options
	cfg     domain.ApplicationConfiguration
	curTime string

	support *Handle
	app     *Handle
	probe   *ProbeContainer

	state        state
	streamCancel context.CancelFunc
}

// New validates the options, resolves the application configuration and
// checks the daemon version.
func New(ctx context.Context, rt ports.ContainerRuntime, builder ports.ImageBuilder, log *logrus.Logger, opts Options) (*Sandbox, error) {
	if opts.AppDir == "" && opts.Image == "" && opts.RepoURL == "" {
		return nil, &ConfigError{Reason: "at least one of an application directory, an image or a repository must be specified"}
	}

	s := &Sandbox{
		rt:      rt,
		builder: builder,
		log:     log,
		curTime: time.Now().Format(timeLayout),
	}
	s.opts = opts.withDefaults(s.curTime)

	if opts.Config != nil {
		s.cfg = *opts.Config
	} else {
		// No config file means a pre-built image; assume the default
		// contract surface.
		s.cfg = domain.ApplicationConfiguration{HealthChecksEnabled: true}
	}

	if !opts.ForceVersion {
		if err := s.checkDaemonVersion(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sandbox) checkDaemonVersion(ctx context.Context) error {
	info, err := s.rt.ServerVersion(ctx)
	if err != nil {
		return &ConfigError{Reason: "could not query runtime daemon version", Err: err}
	}
	v, err := semver.NewVersion(info.Version)
	if err != nil {
		// Non-semver daemon versions (forks, dev builds) are let through.
		s.log.WithField("version", info.Version).Warn("could not parse daemon version")
		return nil
	}
	constraint, err := semver.NewConstraint(supportedDaemonVersions)
	if err != nil {
		return fmt.Errorf("invalid version constraint: %w", err)
	}
	if !constraint.Check(v) {
		return &UnsupportedVersionError{Found: info.Version, Supported: supportedDaemonVersions}
	}
	return nil
}

// Config returns the application configuration the sandbox was built with.
func (s *Sandbox) Config() domain.ApplicationConfiguration { return s.cfg }

// App returns the application container handle, nil before Start.
func (s *Sandbox) App() *Handle { return s.app }

// Support returns the support server handle, nil when not requested.
func (s *Sandbox) Support() *Handle { return s.support }

// Host returns the daemon-visible network address.
func (s *Sandbox) Host() string { return s.rt.Host() }

// AppPort returns the host port the application is reachable on.
func (s *Sandbox) AppPort() int { return s.opts.AppPort }

// Start brings the whole cluster up. Idempotent when already running. On
// any failure during setup, Stop runs before the error propagates, so no
// containers leak.
func (s *Sandbox) Start(ctx context.Context) (err error) {
	if s.state == running || s.state == starting {
		return nil
	}
	s.state = starting
	defer func() {
		if err != nil {
			// Teardown must proceed even when ctx is already cancelled.
			s.Stop(context.WithoutCancel(ctx))
		}
	}()

	if err = s.createAndRun(ctx); err != nil {
		return err
	}
	s.state = running
	return nil
}

func (s *Sandbox) createAndRun(ctx context.Context) error {
	if s.opts.RunSupportServer {
		if err := s.startSupportContainer(ctx); err != nil {
			return err
		}
	}
	if err := s.startAppContainer(ctx); err != nil {
		return err
	}
	if err := s.startProbeContainer(ctx); err != nil {
		return err
	}
	if err := s.waitForStart(ctx); err != nil {
		return err
	}

	// Application logs stream in the background for the clauses and the
	// operator; the stream's lifetime is owned by Stop, not by the
	// container's existence.
	streamCtx, cancel := context.WithCancel(context.Background())
	s.streamCancel = cancel
	s.app.StreamLogs(streamCtx)

	s.log.WithFields(logrus.Fields{
		"host": s.Host(),
		"port": s.opts.AppPort,
	}).Info("application is live")
	return nil
}

// startSupportContainer builds the support image (base image plus the
// application's config files) and runs it with the externally visible
// application and admin ports bound.
func (s *Sandbox) startSupportContainer(ctx context.Context) error {
	image, err := s.buildSupportImage(ctx)
	if err != nil {
		return err
	}

	// The support server needs the application id to namespace service
	// state, the config file location, and the ports to bind its proxy
	// and API server to.
	env := []string{
		"APP_ID=" + s.opts.AppID,
		"PROXY_PORT=" + strconv.Itoa(s.opts.InternalProxyPort),
		"API_PORT=" + strconv.Itoa(s.opts.InternalAPIPort),
		"ADMIN_PORT=" + strconv.Itoa(s.opts.InternalAdminPort),
		"CONFIG_FILE=" + path.Join(s.configOffset(), path.Base(s.opts.ConfigFile)),
	}

	appPort := fmt.Sprintf("%d/tcp", ApplicationPort)
	adminPort := fmt.Sprintf("%d/tcp", s.opts.InternalAdminPort)

	s.support = NewHandle(s.rt, s.log)
	err = s.support.Create(ctx, domain.ContainerSpec{
		Image:        image,
		Name:         timestampedName("support", s.curTime),
		Env:          env,
		ExposedPorts: []string{appPort, adminPort},
		PortBindings: map[string]int{
			appPort:   s.opts.AppPort,
			adminPort: s.opts.AdminPort,
		},
		Binds: []string{s.opts.StoragePath + ":/storage"},
	})
	if err != nil {
		return err
	}
	return s.support.Start(ctx)
}

// startAppContainer builds or reuses the application image and runs it,
// co-located on the support server's network stack when one exists.
func (s *Sandbox) startAppContainer(ctx context.Context) error {
	image, err := s.resolveAppImage(ctx)
	if err != nil {
		return err
	}

	// The application finds the API server on its own network stack when
	// the support server runs; the remaining variables identify the
	// module instance to the platform runtime inside the image.
	env := []string{
		"API_HOST=0.0.0.0",
		"API_PORT=" + strconv.Itoa(s.opts.InternalAPIPort),
		"LONG_APP_ID=" + s.opts.AppID,
		"PARTITION=dev",
		"MODULE_NAME=default",
		"MODULE_VERSION=1",
		"MODULE_INSTANCE=0",
		"CONFIG_PATH=" + path.Base(s.opts.ConfigFile),
		"SERVER_PORT=" + strconv.Itoa(ApplicationPort),
		"ENABLE_AGENT=true",
	}

	spec := domain.ContainerSpec{
		Image: image,
		Name:  timestampedName("test_app", s.curTime),
		Env:   env,
		Binds: []string{s.opts.LogPath + ":/var/log/app"},
	}
	if s.support != nil {
		spec.NetworkMode = "container:" + s.support.ID()
	} else {
		appPort := fmt.Sprintf("%d/tcp", ApplicationPort)
		spec.ExposedPorts = []string{appPort}
		spec.PortBindings = map[string]int{appPort: s.opts.AppPort}
	}

	s.app = NewHandle(s.rt, s.log)
	if err := s.app.Create(ctx, spec); err != nil {
		return err
	}
	return s.app.Start(ctx)
}

// startProbeContainer puts the probe on the application's network stack
// so it can test the application port from inside the namespace.
func (s *Sandbox) startProbeContainer(ctx context.Context) error {
	s.probe = NewProbeContainer(s.rt, s.log, ApplicationPort)
	err := s.probe.Create(ctx, domain.ContainerSpec{
		Image:       ProbeImage,
		Name:        timestampedName("probe", s.curTime),
		NetworkMode: "container:" + s.app.ID(),
	})
	if err != nil {
		return err
	}
	return s.probe.Start(ctx)
}

// waitForStart polls the probe once per second until the application
// listens on its port, the support server dies, the polling budget runs
// out, or ctx is cancelled.
func (s *Sandbox) waitForStart(ctx context.Context) error {
	s.log.WithField("port", ApplicationPort).Info("waiting for application to listen")

	for attempt := 1; attempt <= s.opts.TimeoutAttempts; attempt++ {
		if s.support != nil && !s.support.Running(ctx) {
			// The cluster cannot come up without its API server; dump
			// its logs so the operator sees why it died.
			s.support.DumpLogs(ctx)
			return &SupportDiedError{Name: s.support.Name()}
		}

		if s.probe.ProbePort(ctx) {
			return nil
		}
		s.log.WithField("attempt", attempt).Debug("application not listening yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return &StartupTimeoutError{Attempts: s.opts.TimeoutAttempts}
}

// Stop kills and removes every container the sandbox created, in reverse
// creation order. Containers never created or already removed are skipped
// without error; Stop is safe to call at any point of a failed Start.
func (s *Sandbox) Stop(ctx context.Context) {
	if s.state == stopping {
		return
	}
	s.state = stopping
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}

	for _, h := range []*Handle{probeHandle(s.probe), s.app, s.support} {
		if h == nil || h.ID() == "" {
			continue
		}
		entry := s.log.WithField("container", h.Name())
		if h.Running(ctx) {
			entry.Info("stopping container")
			if err := h.Kill(ctx); err != nil {
				entry.WithError(err).Warn("failed to kill container")
			}
		}
		entry.Info("removing container")
		if err := h.Remove(ctx); err != nil {
			entry.WithError(err).Warn("failed to remove container")
		}
	}
	s.state = idle
}

func probeHandle(p *ProbeContainer) *Handle {
	if p == nil {
		return nil
	}
	return p.Handle
}

// resolveAppImage returns the image to run: an explicit reference, a
// build from a git repository, or a build from the application directory.
func (s *Sandbox) resolveAppImage(ctx context.Context) (string, error) {
	if s.opts.Image != "" {
		return s.opts.Image, nil
	}
	tag := timestampedName("app_image", s.curTime)
	if s.opts.RepoURL != "" {
		return s.builder.BuildFromRepo(ctx, s.opts.RepoURL, tag)
	}
	return s.builder.BuildFromDir(ctx, s.opts.AppDir, tag)
}

// buildSupportImage layers the application's config files over the
// support base image so the support server can read them at its
// conventional location.
func (s *Sandbox) buildSupportImage(ctx context.Context) (string, error) {
	offset := s.configOffset()
	files := []ports.ContextFile{}
	if s.opts.ConfigFile != "" {
		files = append(files, ports.ContextFile{
			Name: path.Join("config", path.Base(s.opts.ConfigFile)),
			Path: s.opts.ConfigFile,
		})
		if s.cfg.IsJava {
			webXML := path.Join(path.Dir(s.opts.ConfigFile), "web.xml")
			files = append(files, ports.ContextFile{
				Name: path.Join("config", "web.xml"),
				Path: webXML,
			})
		}
	}

	dockerfile := fmt.Sprintf("FROM %s\nADD config/* %s\n",
		SupportBaseImage, path.Join("/app", offset)+"/")

	tag := timestampedName("support_image", s.curTime)
	return s.builder.BuildFromContext(ctx, ports.BuildContext{
		Dockerfile: dockerfile,
		Files:      files,
	}, tag)
}

// configOffset is where the config files sit relative to the application
// root inside the support image. Java configs live under WEB-INF/.
func (s *Sandbox) configOffset() string {
	if s.cfg.IsJava {
		return JavaOffset
	}
	return ""
}

func timestampedName(base, timeStr string) string {
	return base + "." + timeStr
}
