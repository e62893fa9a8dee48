package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taleforge/internal/fork"
	"github.com/jvs-project/taleforge/internal/project"
	"github.com/jvs-project/taleforge/pkg/color"
)

var (
	forkWorkspacePath string
	forkCreatorUserID string
	forkTargetVersion string
	forkShallow       bool
)

var projectForkCmd = &cobra.Command{
	Use:   "fork <source-project-id>",
	Short: "Fork a project's version and run trees into a freshly allocated project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()
		ctx := cmd.Context()

		srcProject, err := project.Get(ctx, a.store, args[0])
		if err != nil {
			fmtErr("get source project: %v", err)
			os.Exit(1)
		}

		workspacePath := forkWorkspacePath
		if workspacePath == "" {
			workspacePath = srcProject.WorkspacePath
		}
		dstProject, err := project.Create(ctx, a.store, a.cfg.StorageRoot, workspacePath, forkCreatorUserID)
		if err != nil {
			fmtErr("allocate destination project: %v", err)
			os.Exit(1)
		}

		src := fork.Project{ID: srcProject.ProjectID, VersionsRootID: srcProject.VersionsRootID, RunsRootID: srcProject.RunsRootID}
		dst := fork.Project{ID: dstProject.ProjectID, VersionsRootID: dstProject.VersionsRootID, RunsRootID: dstProject.RunsRootID}

		result, err := a.fork.Fork(ctx, src, dst, forkTargetVersion, forkShallow)
		if err != nil {
			fmtErr("fork project: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"project_id":          dstProject.ProjectID,
				"version_id_map":      result.VersionIDMap,
				"restored_version_id": result.RestoredVersionID,
			})
			return
		}
		fmt.Printf("Forked %s into %s\n", color.ObjectID(srcProject.ProjectID), color.ObjectID(dstProject.ProjectID))
		fmt.Printf("  Versions copied: %d\n", len(result.VersionIDMap))
		if result.RestoredVersionID != "" {
			fmt.Printf("  Restored head version: %s\n", color.ObjectID(result.RestoredVersionID))
		}
	},
}

func init() {
	projectForkCmd.Flags().StringVar(&forkWorkspacePath, "workspace", "", "workspace path for the new project (defaults to the source project's)")
	projectForkCmd.Flags().StringVar(&forkCreatorUserID, "creator", "", "user id recorded as the new project's creator")
	projectForkCmd.Flags().StringVar(&forkTargetVersion, "restore", "", "restore this source version as the new project's head version after forking")
	projectForkCmd.Flags().BoolVar(&forkShallow, "shallow", false, "copy only the --restore version (all runs are still copied); without --restore nothing is copied")

	projectCmd.AddCommand(projectForkCmd)
}
