package main

import (
	"fmt"

	"medthread/internal/config"
	"medthread/internal/models"
	"medthread/internal/util"
	"medthread/internal/workflows"

	"github.com/spf13/cobra"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// workflowIDFor keys runs by filter so two runs over the same items cannot be
// open at once.
func workflowIDFor(f models.Filter) string {
	return "annotation-run-" + util.ShortHash(f.String(), 16)
}

func newSubmitCmd() *cobra.Command {
	var (
		ff         filterFlags
		limit      int
		dryRun     bool
		wait       bool
		workflowID string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Start an annotation run on the Temporal worker",
		Long: `Starts AnnotationRunWorkflow on the configured task queue. If the batch cannot
be stored the workflow replays its backup automatically. Use --wait to block
until the workflow finishes and print its result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			cfg := config.Load()
			c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
			if err != nil {
				return fmt.Errorf("dial temporal %s: %w", cfg.TemporalAddress, err)
			}
			defer c.Close()

			if workflowID == "" {
				workflowID = workflowIDFor(f)
			}
			run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:                                       workflowID,
				TaskQueue:                                cfg.TemporalTaskQueue,
				WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
				WorkflowExecutionErrorWhenAlreadyStarted: true,
			}, workflows.AnnotationRunWorkflow, workflows.AnnotationRunInput{
				Filter: f,
				Limit:  limit,
				DryRun: dryRun,
			})
			if err != nil {
				return fmt.Errorf("start workflow %s: %w", workflowID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started workflow_id=%s run_id=%s\n", run.GetID(), run.GetRunID())
			if !wait {
				return nil
			}
			var out workflows.RunProgress
			if err := run.Get(ctx, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	ff.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pending items to annotate (0 for no limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write the backup but not the database")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow result")
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "override the filter-derived workflow id")
	return cmd
}
