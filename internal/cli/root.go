// Package cli wires the adapters into the sandbox and contract engine
// and exposes them as the validate and run commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-verify/internal/adapters/appconfig"
	"github.com/melih/lighthouse-verify/internal/adapters/builder"
	"github.com/melih/lighthouse-verify/internal/adapters/docker"
	"github.com/melih/lighthouse-verify/internal/core/sandbox"
)

var log = logrus.New()

var (
	verbose bool
	logFile string

	configFile      string
	image           string
	appDir          string
	repoURL         string
	appPort         int
	adminPort       int
	supportServer   bool
	timeoutAttempts int
	forceVersion    bool
	nocache         bool
)

var rootCmd = &cobra.Command{
	Use:   "lighthouse-verify",
	Short: "Sandbox and contract validation for platform applications",
	Long: `lighthouse-verify launches an application container inside an emulated
platform environment and checks it against the runtime contract: a set of
clauses covering startup, health checking, logging and shutdown behavior.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the CLI with ctx driving cancellation.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug output, including application logs")
	pf.StringVar(&logFile, "log-file", "", "mirror all output to this file, without colors")

	pf.StringVar(&configFile, "config", "", "application configuration file (app.yaml or WEB-INF/appengine-web.xml)")
	pf.StringVar(&image, "image", "", "run a pre-built application image instead of building one")
	pf.StringVar(&appDir, "app-dir", "", "application directory containing the Dockerfile")
	pf.StringVar(&repoURL, "repo", "", "build the application image from a git repository")
	pf.IntVar(&appPort, "app-port", 0, "host port mapped to the application (default 8080)")
	pf.IntVar(&adminPort, "admin-port", 0, "host port mapped to the support server's admin panel (default 8000)")
	pf.BoolVar(&supportServer, "support-server", false, "run the support/API server container alongside the application")
	pf.IntVar(&timeoutAttempts, "timeout", 0, "startup polling attempts, one per second (default 30)")
	pf.BoolVar(&forceVersion, "force-version", false, "skip the daemon version check")
	pf.BoolVar(&nocache, "nocache", false, "build images without the daemon's layer cache")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func setupLogging(cmd *cobra.Command, args []string) error {
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return nil
}

// buildSandbox assembles the runtime and builder adapters and a sandbox
// configured from the command line.
func buildSandbox(ctx context.Context) (*sandbox.Sandbox, *docker.Adapter, error) {
	rt, err := docker.NewAdapter()
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to the container daemon: %w", err)
	}
	imageBuilder, err := builder.NewBuilderAdapter(log, nocache)
	if err != nil {
		return nil, nil, fmt.Errorf("could not initialize the image builder: %w", err)
	}

	opts := sandbox.Options{
		ConfigFile:       configFile,
		AppDir:           appDir,
		Image:            image,
		RepoURL:          repoURL,
		AppPort:          appPort,
		AdminPort:        adminPort,
		RunSupportServer: supportServer,
		TimeoutAttempts:  timeoutAttempts,
		ForceVersion:     forceVersion,
	}

	if configFile != "" {
		cfg, err := appconfig.Load(configFile)
		if err != nil {
			return nil, nil, err
		}
		opts.Config = &cfg
		if opts.AppDir == "" && opts.Image == "" && opts.RepoURL == "" {
			opts.AppDir = appconfig.AppDir(configFile)
		}
	}

	sb, err := sandbox.New(ctx, rt, imageBuilder, log, opts)
	if err != nil {
		return nil, nil, err
	}
	return sb, rt, nil
}
