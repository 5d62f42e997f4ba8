package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Palmstroemen/MyOS/internal/exportpkg"
)

var importCmd = &cobra.Command{
	Use:   "import <package>",
	Short: "Restore or adopt an exported package",
	Long:  `Import restores a package to the project root recorded at export time ("restore"), or grafts it under --target ("adopt").`,
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("mode", "restore", `import mode: "restore" or "adopt"`)
	importCmd.Flags().String("target", "", "target project root (required for adopt)")
	importCmd.Flags().String("conflict", "merge", `conflict policy: "merge", "overwrite", or "skip"`)
}

func runImport(cmd *cobra.Command, args []string) error {
	pkg := args[0]
	mode, _ := cmd.Flags().GetString("mode")
	target, _ := cmd.Flags().GetString("target")
	conflict, _ := cmd.Flags().GetString("conflict")

	result, err := exportpkg.ImportPackage(pkg, exportpkg.ImportOptions{
		Mode:       mode,
		TargetRoot: target,
		Conflict:   conflict,
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Imported %s into %s\n", result.SubtreePath, result.ImportRoot)
	return nil
}
