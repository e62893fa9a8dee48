package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taleforge/internal/project"
	"github.com/jvs-project/taleforge/pkg/color"
)

var (
	runProjectID  string
	runVersionID  string
	runAllowRenam bool
	runEntrypoint string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create, start and inspect execution runs of a project",
}

func loadRunsRootID(cmd *cobra.Command, projectID string) (a *app, runsRootID string) {
	a = requireApp()
	p, err := project.Get(cmd.Context(), a.store, projectID)
	if err != nil {
		fmtErr("get project: %v", err)
		os.Exit(1)
	}
	return a, p.RunsRootID
}

var runCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Allocate a new run, optionally anchored to a version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, rootID := loadRunsRootID(cmd, runProjectID)

		r, err := a.runs.Create(cmd.Context(), rootID, runProjectID, runVersionID, args[0], runAllowRenam)
		if err != nil {
			fmtErr("create run: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(r)
			return
		}
		fmt.Printf("Created run %s (%s) status=%s\n", color.ObjectID(r.ID), r.Name, color.Status(r.Status.String()))
	},
}

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's runs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, rootID := loadRunsRootID(cmd, runProjectID)

		runs, err := a.runs.List(cmd.Context(), rootID)
		if err != nil {
			fmtErr("list runs: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(runs)
			return
		}
		for _, r := range runs {
			fmt.Printf("%s  %-20s  %s\n", color.ObjectID(r.ID), r.Name, color.Status(r.Status.String()))
		}
	},
}

var runGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show a single run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		r, err := a.runs.Get(cmd.Context(), args[0])
		if err != nil {
			fmtErr("get run: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(r)
			return
		}
		fmt.Printf("Run:     %s\n", color.ObjectID(r.ID))
		fmt.Printf("  Name:    %s\n", r.Name)
		fmt.Printf("  Status:  %s\n", color.Status(r.Status.String()))
		if r.RunVersionID != "" {
			fmt.Printf("  Version: %s\n", color.ObjectID(r.RunVersionID))
		}
	},
}

var runStartCmd = &cobra.Command{
	Use:   "start <run-id>",
	Short: "Dispatch a run to the job queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		handle, err := a.runs.Start(cmd.Context(), runProjectID, args[0], runEntrypoint)
		if err != nil {
			fmtErr("start run: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(handle)
			return
		}
		fmt.Printf("Started run %s as job %s (queue %s)\n", color.ObjectID(args[0]), handle.JobID, handle.WorkerQueue)
	},
}

var runStatusCmd = &cobra.Command{
	Use:   "status <run-id> <status>",
	Short: "Apply a job status transition to a run (queued, running, success, error)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		if err := a.runs.ApplyJobStatus(cmd.Context(), runProjectID, args[0], args[1]); err != nil {
			fmtErr("apply run status: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"run_id": args[0], "status": args[1]})
			return
		}
		fmt.Printf("Run %s is now %s\n", color.ObjectID(args[0]), color.Status(args[1]))
	},
}

var runRmCmd = &cobra.Command{
	Use:   "rm <run-id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		if err := a.runs.Delete(cmd.Context(), runProjectID, args[0]); err != nil {
			fmtErr("delete run: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"run_id": args[0], "status": "removed"})
			return
		}
		fmt.Printf("Removed run %s\n", color.ObjectID(args[0]))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCreateCmd, runListCmd, runStartCmd, runStatusCmd, runRmCmd} {
		cmd.Flags().StringVar(&runProjectID, "project", "", "project id (required)")
		cmd.MarkFlagRequired("project")
	}
	runCreateCmd.Flags().StringVar(&runVersionID, "version", "", "version id this run is anchored to")
	runCreateCmd.Flags().BoolVar(&runAllowRenam, "allow-rename", false, "append a numeric suffix instead of failing on a name collision")
	runStartCmd.Flags().StringVar(&runEntrypoint, "entrypoint", "", "entrypoint script to execute (defaults to run.sh)")

	runCmd.AddCommand(runCreateCmd, runListCmd, runGetCmd, runStartCmd, runStatusCmd, runRmCmd)
	rootCmd.AddCommand(runCmd)
}
