package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taleforge/internal/project"
	"github.com/jvs-project/taleforge/pkg/color"
)

var (
	versionProjectID  string
	versionAllowRenam bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Create, list and restore versions of a project",
}

func loadRootIDs(cmd *cobra.Command, projectID string) (a *app, versionsRootID string) {
	a = requireApp()
	p, err := project.Get(cmd.Context(), a.store, projectID)
	if err != nil {
		fmtErr("get project: %v", err)
		os.Exit(1)
	}
	return a, p.VersionsRootID
}

var versionCreateCmd = &cobra.Command{
	Use:   "create <workspace-path> <name>",
	Short: "Capture a new version of a workspace",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, rootID := loadRootIDs(cmd, versionProjectID)

		result, err := a.versions.Create(cmd.Context(), rootID, versionProjectID, args[0], args[1], versionAllowRenam)
		if err != nil {
			fmtErr("create version: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result.Version)
			return
		}
		fmt.Printf("Created version %s (%s)\n", color.ObjectID(result.Version.ID), result.Version.Name)
	},
}

var versionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's versions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, rootID := loadRootIDs(cmd, versionProjectID)

		versions, err := a.versions.List(cmd.Context(), rootID)
		if err != nil {
			fmtErr("list versions: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(versions)
			return
		}
		for _, v := range versions {
			fmt.Printf("%s  %-20s  %s\n", color.ObjectID(v.ID), v.Name, v.Created.Format("2006-01-02 15:04:05"))
		}
	},
}

var versionGetCmd = &cobra.Command{
	Use:   "get <version-id>",
	Short: "Show a single version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := requireApp()

		v, err := a.versions.Get(cmd.Context(), args[0])
		if err != nil {
			fmtErr("get version: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(v)
			return
		}
		fmt.Printf("Version:  %s\n", color.ObjectID(v.ID))
		fmt.Printf("  Name:      %s\n", v.Name)
		fmt.Printf("  Ref count: %d\n", v.RefCount)
		fmt.Printf("  Created:   %s\n", v.Created.Format("2006-01-02 15:04:05"))
	},
}

var versionRenameCmd = &cobra.Command{
	Use:   "rename <version-id> <new-name>",
	Short: "Rename a version",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, rootID := loadRootIDs(cmd, versionProjectID)

		newName, err := a.versions.Rename(cmd.Context(), rootID, args[0], args[1], versionAllowRenam)
		if err != nil {
			fmtErr("rename version: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"version_id": args[0], "name": newName})
			return
		}
		fmt.Printf("Renamed version %s to %s\n", color.ObjectID(args[0]), newName)
	},
}

var versionRestoreCmd = &cobra.Command{
	Use:   "restore <source-version-id>",
	Short: "Reset the project's live workspace to a historical version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, rootID := loadRootIDs(cmd, versionProjectID)

		if err := a.versions.Restore(cmd.Context(), rootID, versionProjectID, args[0]); err != nil {
			fmtErr("restore version: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"project_id": versionProjectID, "restored_from": args[0]})
			return
		}
		fmt.Printf("Restored project %s workspace to version %s\n", color.ObjectID(versionProjectID), color.ObjectID(args[0]))
	},
}

var versionRmCmd = &cobra.Command{
	Use:   "rm <version-id>",
	Short: "Delete a version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, rootID := loadRootIDs(cmd, versionProjectID)

		if err := a.versions.Delete(cmd.Context(), rootID, versionProjectID, args[0]); err != nil {
			fmtErr("delete version: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{"version_id": args[0], "status": "removed"})
			return
		}
		fmt.Printf("Removed version %s\n", color.ObjectID(args[0]))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{versionCreateCmd, versionListCmd, versionRenameCmd, versionRestoreCmd, versionRmCmd} {
		cmd.Flags().StringVar(&versionProjectID, "project", "", "project id (required)")
		cmd.MarkFlagRequired("project")
	}
	for _, cmd := range []*cobra.Command{versionCreateCmd, versionRenameCmd} {
		cmd.Flags().BoolVar(&versionAllowRenam, "allow-rename", false, "append a numeric suffix instead of failing on a name collision")
	}

	versionCmd.AddCommand(versionCreateCmd, versionListCmd, versionGetCmd, versionRenameCmd, versionRestoreCmd, versionRmCmd)
	rootCmd.AddCommand(versionCmd)
}
