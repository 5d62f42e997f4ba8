package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Palmstroemen/MyOS/internal/project"
)

var propagateCmd = &cobra.Command{
	Use:   "propagate <dir> <section>",
	Short: "Push a config section down to every direct child project",
	Long:  `Propagate copies the named section's current value to each child project, unless that child has pinned it with inherit: fix.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runPropagate,
}

func init() {
	rootCmd.AddCommand(propagateCmd)
	propagateCmd.Flags().Bool("dry-run", false, "report what would change without writing anything")
}

func runPropagate(cmd *cobra.Command, args []string) error {
	dir, section := args[0], args[1]
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg := project.New(dir)
	if !cfg.IsValid() {
		return fmt.Errorf("%s is not a MyOS project", dir)
	}

	results, err := cfg.PropagateConfig(section, dryRun)
	if err != nil {
		return fmt.Errorf("propagate failed: %w", err)
	}

	roots := make([]string, 0, len(results))
	for root := range results {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		fmt.Printf("%s: %s\n", root, results[root])
	}
	return nil
}
