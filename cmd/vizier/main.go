package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordan-tan/vizier/internal/cliapp"
	"github.com/jordan-tan/vizier/internal/vizerr"
	"github.com/jordan-tan/vizier/pkg/console"
	"github.com/jordan-tan/vizier/pkg/constants"
)

var version = "dev"

var globalFlags cliapp.GlobalFlags

var rootCmd = &cobra.Command{
	Use:     constants.CLIPrefix,
	Short:   "Vizier plan workflow CLI",
	Version: version,
	Long: `Vizier orchestrates save/draft/review/approve/merge plan workflows
over a git repository, driving agent backends through a durable job record
store.

Common Tasks:
  vizier save "message"          # capture the current worktree as a patch
  vizier draft my-plan "prompt"  # generate a plan branch/doc
  vizier review my-plan          # critique a drafted plan
  vizier approve my-plan --stop-condition ./check.sh
  vizier merge my-plan feature main
  vizier jobs list                # inspect job records

For detailed help on any command, use:
  vizier [command] --help`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "plan", Title: "Plan Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "jobs", Title: "Job Commands:"})

	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigFile, "config-file", "", "Path to an explicit .vizier/config.toml")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.NoCommit, "no-commit", false, "Skip committing workflow results to the repository")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Backend, "backend", "", "Agent backend name (overrides VIZIER_BACKEND/config)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Push, "push", false, "Push branches created by this command")

	rootCmd.SetOut(os.Stderr)
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s\n",
		console.FormatInfoMessage(fmt.Sprintf("%s version {{.Version}}", constants.CLIPrefix))))

	saveCmd := newSaveCommand()
	draftCmd := newDraftCommand()
	reviewCmd := newReviewCommand()
	approveCmd := newApproveCommand()
	mergeCmd := newMergeCommand()
	jobsCmd := newJobsCommand()

	saveCmd.GroupID = "plan"
	draftCmd.GroupID = "plan"
	reviewCmd.GroupID = "plan"
	approveCmd.GroupID = "plan"
	mergeCmd.GroupID = "plan"
	jobsCmd.GroupID = "jobs"

	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(jobsCmd)
}

// resolveDeps builds the live wiring every command's RunE needs, from the
// persistent global flags and the current working directory.
func resolveDeps() (*cliapp.Deps, error) {
	repoRoot, err := cliapp.RepoRootFromCwd()
	if err != nil {
		return nil, err
	}
	return cliapp.Resolve(repoRoot, globalFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(vizerr.ExitCode(err))
	}
}
