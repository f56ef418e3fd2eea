package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalscope/report-cli/internal/report"
)

var (
	reportSearchID string
	reportUserID   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a report for a stored search",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Runner.Run(ctx, report.Params{
			SearchID: reportSearchID,
			UserID:   reportUserID,
			Progress: printProgress,
		})
		if err != nil {
			switch {
			case report.IsNotFound(err):
				return eris.Wrapf(err, "search %s not found", reportSearchID)
			case report.IsConflict(err):
				return eris.Wrap(err, "a report for this search is already running")
			default:
				return eris.Wrap(err, "report run")
			}
		}

		// Analysis is nil on a cached result whose original synthesis
		// fell back and therefore persisted no insight.
		fallback := result.Analysis == nil || result.Analysis.Fallback
		zap.L().Info("report complete",
			zap.String("search", reportSearchID),
			zap.String("job", result.Job.ID),
			zap.Int("posts", len(result.Posts)),
			zap.Bool("cached", result.Cached),
			zap.Bool("fallback", fallback),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// printProgress writes step events to stderr so stdout stays clean JSON.
func printProgress(ev report.Event) {
	if ev.Detail != "" {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Step, ev.Detail)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s]\n", ev.Step)
}

func init() {
	reportCmd.Flags().StringVar(&reportSearchID, "search", "", "search ID (required)")
	reportCmd.Flags().StringVar(&reportUserID, "user", "", "requesting user ID (required)")
	_ = reportCmd.MarkFlagRequired("search")
	_ = reportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(reportCmd)
}
