package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordan-tan/vizier/pkg/console"
	"github.com/jordan-tan/vizier/pkg/scheduleview"
)

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control job records",
	}
	cmd.AddCommand(
		newJobsListCommand(),
		newJobsScheduleCommand(),
		newJobsShowCommand("show"),
		newJobsShowCommand("status"),
		newJobsTailCommand("tail", true),
		newJobsTailCommand("attach", true),
		newJobsCancelCommand(),
		newJobsRetryCommand(),
		newJobsGCCommand(),
		newJobsApproveCommand(),
		newJobsRejectCommand(),
	)
	return cmd
}

func scheduleOptionsFlags(cmd *cobra.Command, opts *scheduleview.Options) {
	cmd.Flags().StringVar(&opts.Job, "job", "", "Focus on this job id and its one-hop neighborhood")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "Neighborhood expansion depth for --job (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Include succeeded jobs")
	cmd.Flags().BoolVar(&opts.DismissFailures, "dismiss-failures", false, "Also hide failed jobs")
}

func newJobsListCommand() *cobra.Command {
	var opts scheduleview.Options
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job records (spec §4.5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			entries, warnings, err := deps.List(opts)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), console.FormatWarningMessage(w.Error()))
			}
			return renderEntries(cmd, entries, format)
		},
	}
	scheduleOptionsFlags(cmd, &opts)
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newJobsScheduleCommand() *cobra.Command {
	var opts scheduleview.Options
	var format string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Render the full job dependency schedule (spec §4.5, §6.5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			entries, published, warnings, err := deps.Schedule(opts)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), console.FormatWarningMessage(w.Error()))
			}
			out := cmd.OutOrStdout()
			switch format {
			case "dag":
				fmt.Fprint(out, scheduleview.RenderDAG(entries, published))
			case "json":
				doc := scheduleview.Build(entries, published)
				payload, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return fmt.Errorf("cmd/vizier: encoding schedule json: %w", err)
				}
				fmt.Fprintln(out, string(payload))
			default:
				fmt.Fprint(out, scheduleview.RenderSummary(entries))
			}
			return nil
		},
	}
	scheduleOptionsFlags(cmd, &opts)
	cmd.Flags().StringVar(&format, "format", "summary", "Output format: summary, dag, or json")
	return cmd
}

func renderEntries(cmd *cobra.Command, entries []scheduleview.Entry, format string) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		payload, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("cmd/vizier: encoding job list json: %w", err)
		}
		fmt.Fprintln(out, string(payload))
		return nil
	}
	fmt.Fprint(out, scheduleview.RenderList(entries, scheduleview.DefaultListFields))
	return nil
}

func newJobsShowCommand(use string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   use + " <job-id>",
		Short: "Show one job's full detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			detail, err := deps.Show(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				payload, err := scheduleview.RenderDetailJSON(detail)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, payload)
				return nil
			}
			fmt.Fprint(out, scheduleview.RenderDetailText(detail))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the job's detail projection as JSON")
	return cmd
}

func newJobsTailCommand(use string, follow bool) *cobra.Command {
	var noFollow bool
	cmd := &cobra.Command{
		Use:   use + " <job-id>",
		Short: "Stream a job's interleaved stdout/stderr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(l scheduleview.Line) {
				fmt.Fprintln(out, scheduleview.FormatLine(l))
			}
			return deps.Tail(cmd.Context(), args[0], follow && !noFollow, emit)
		},
	}
	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Print what's on disk once and exit instead of following")
	return cmd
}

func newJobsCancelCommand() *cobra.Command {
	var cleanupWorktree bool
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel an active job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			if err := deps.CancelJob(cmd.Context(), args[0], cleanupWorktree); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage("job "+args[0]+" cancelled"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanupWorktree, "cleanup-worktree", false, "Remove the job's owned worktree if present")
	return cmd
}

func newJobsRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Re-queue a terminal job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			if err := deps.RetryJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage("job "+args[0]+" requeued"))
			return nil
		},
	}
}

func newJobsGCCommand() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove terminal job directories older than a threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			removed, err := deps.GCJobs(olderThan)
			if err != nil {
				return err
			}
			for _, id := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), console.FormatListItem(id))
			}
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatInfoMessage(fmt.Sprintf("removed %d job(s)", len(removed))))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Remove terminal jobs finished before this long ago")
	return cmd
}

func newJobsApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <job-id>",
		Short: "Approve a job's pending gate approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			if err := deps.ApproveJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage("job "+args[0]+" approved"))
			return nil
		},
	}
}

func newJobsRejectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <job-id> [reason]",
		Short: "Reject a job's pending gate approval",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := ""
			if len(args) == 2 {
				reason = args[1]
			}
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			if err := deps.RejectJob(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage("job "+args[0]+" rejected"))
			return nil
		},
	}
}
