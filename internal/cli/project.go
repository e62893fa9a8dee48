package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taleforge/internal/project"
	"github.com/jvs-project/taleforge/pkg/color"
)

var projectCreatorUserID string

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, inspect and remove taleforge projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <workspace-path>",
	Short: "Allocate a new project (a Versions Root and a Runs Root)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		p, err := project.Create(cmd.Context(), a.store, a.cfg.StorageRoot, args[0], projectCreatorUserID)
		if err != nil {
			fmtErr("create project: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(p)
			return
		}
		fmt.Printf("Created project %s\n", color.ObjectID(p.ProjectID))
		fmt.Printf("  Versions root: %s\n", p.VersionsRootID)
		fmt.Printf("  Runs root:     %s\n", p.RunsRootID)
	},
}

var projectGetCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Show a project's roots and workspace path",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		p, err := project.Get(cmd.Context(), a.store, args[0])
		if err != nil {
			fmtErr("get project: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(p)
			return
		}
		fmt.Printf("Project:     %s\n", color.ObjectID(p.ProjectID))
		fmt.Printf("  Workspace: %s\n", p.WorkspacePath)
		fmt.Printf("  Versions root: %s\n", p.VersionsRootID)
		fmt.Printf("  Runs root:     %s\n", p.RunsRootID)
		if p.RestoredFrom != "" {
			fmt.Printf("  Restored from: %s\n", p.RestoredFrom)
		}
	},
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <project-id>",
	Short: "Remove a project's roots and on-disk directory tree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		if err := project.Remove(cmd.Context(), a.store, a.cfg.StorageRoot, args[0]); err != nil {
			fmtErr("remove project: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"project_id": args[0], "status": "removed"})
			return
		}
		fmt.Printf("Removed project %s\n", color.ObjectID(args[0]))
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectCreatorUserID, "creator", "", "user id recorded as the project's creator")

	projectCmd.AddCommand(projectCreateCmd, projectGetCmd, projectRmCmd)
	rootCmd.AddCommand(projectCmd)
}
