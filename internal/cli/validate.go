package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-verify/internal/core/contract"
	"github.com/melih/lighthouse-verify/internal/core/domain"
)

var (
	tags          []string
	thresholdName string
	hookDir       string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the application against the runtime contract",
	Long: `validate starts the sandbox, evaluates every contract clause in
lifecycle order and prints a report. The exit status is non-zero when any
clause at or above the severity threshold fails.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringSliceVar(&tags, "tags", nil, "only evaluate clauses carrying one of these tags")
	validateCmd.Flags().StringVar(&thresholdName, "threshold", "WARNING", "severity that fails the run: UNUSED, WARNING or FATAL")
	validateCmd.Flags().StringVar(&hookDir, "hook-dir", "", "directory of user-supplied clause descriptors")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	threshold, err := domain.ParseSeverity(thresholdName)
	if err != nil {
		return err
	}

	reg := contract.Builtins()
	if hookDir != "" {
		n, err := contract.NewHookLoader(log).LoadDir(reg, hookDir)
		if err != nil {
			return err
		}
		log.WithField("count", n).Info("loaded user-supplied clauses")
	}
	plan, err := contract.Resolve(reg)
	if err != nil {
		return err
	}

	sb, _, err := buildSandbox(cmd.Context())
	if err != nil {
		return err
	}

	engine := contract.NewEngine(plan, log, contract.Options{
		Threshold: threshold,
		Tags:      tags,
	})
	report, err := engine.Validate(cmd.Context(), sb)
	if err != nil {
		return err
	}

	if err := contract.WriteReport(os.Stdout, report); err != nil {
		return err
	}
	if logFile != "" {
		if err := appendPlainReport(logFile, report); err != nil {
			log.WithError(err).WithField("file", logFile).Error("could not capture the report to the log file")
		}
	}

	if !report.Success() {
		return fmt.Errorf("the application does not satisfy the runtime contract")
	}
	return nil
}

// appendPlainReport mirrors the report, without colors or separators, to
// the configured log file.
func appendPlainReport(path string, r *domain.Report) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return contract.WritePlainReport(f, r)
}
