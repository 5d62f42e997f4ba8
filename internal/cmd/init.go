package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Palmstroemen/MyOS/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init <dir>",
	Short: "Create a new project, inheriting .MyOS/ from the nearest ancestor",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("template", "", "template to seed if the parent contributes none")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := args[0]
	template, _ := cmd.Flags().GetString("template")

	valid, err := project.MakeProject(dir, template)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	if !valid {
		return fmt.Errorf("project created at %s but is missing Project.md", dir)
	}

	fmt.Printf("Project created at %s\n", dir)
	return nil
}
