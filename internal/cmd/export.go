package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Palmstroemen/MyOS/internal/exportpkg"
)

var exportCmd = &cobra.Command{
	Use:   "export <subtree> <output-dir>",
	Short: "Package a project subtree with its .MyOS/ state and templates",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("name", "", "package folder name (default: <project>_export_<date>)")
	exportCmd.Flags().Bool("zip", false, "archive the package as a .zip instead of leaving a folder")
}

func runExport(cmd *cobra.Command, args []string) error {
	subtree, outputDir := args[0], args[1]
	name, _ := cmd.Flags().GetString("name")
	zip, _ := cmd.Flags().GetBool("zip")

	result, err := exportpkg.ExportSubtree(subtree, outputDir, exportpkg.Options{
		PackageName: name,
		Zip:         zip,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("Exported %s (from %s) to %s\n", result.SubtreePath, result.ExportRoot, result.PackagePath)
	return nil
}
