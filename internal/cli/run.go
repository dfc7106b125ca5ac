package cli

import (
	"context"

	"github.com/spf13/cobra"

	httpadapter "github.com/melih/lighthouse-verify/internal/adapters/http"
)

var listenAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the application in the sandbox until interrupted",
	Long: `run starts the sandbox and keeps it alive, serving a status API and a
reverse proxy to the application. Interrupting the process tears the
cluster down.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&listenAddr, "listen", ":3000", "address for the status server and proxy")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sb, rt, err := buildSandbox(ctx)
	if err != nil {
		return err
	}
	if err := sb.Start(ctx); err != nil {
		return err
	}
	defer sb.Stop(context.WithoutCancel(ctx))

	app := httpadapter.Router(sb, rt, log)
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Warn("status server shutdown failed")
		}
	}()

	log.WithField("addr", listenAddr).Info("status server listening")
	if err := app.Listen(listenAddr); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
