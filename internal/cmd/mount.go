package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	config "github.com/Palmstroemen/MyOS/internal/appconfig"
	"github.com/Palmstroemen/MyOS/internal/overlay"
)

var mountCmd = &cobra.Command{
	Use:   "mount <project-root> [mountpoint]",
	Short: "Mount a project as the blueprint overlay",
	Long:  `Mount overlays the given project root at mountpoint, materializing embryo directories on first write.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().BoolP("foreground", "f", false, "run in foreground (don't daemonize)")
}

func runMount(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	root := args[0]

	mountpoint := cfg.Mount.DefaultPath
	if len(args) > 1 {
		mountpoint = args[1]
	}
	if mountpoint == "" {
		return fmt.Errorf("mountpoint required: myos mount /path/to/project /path/to/mount")
	}

	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return fmt.Errorf("failed to create mountpoint: %w", err)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	if d, _ := cmd.Root().PersistentFlags().GetBool("debug"); d {
		debug = true
	}

	fmt.Printf("Mounting %s at %s\n", root, mountpoint)

	server, _, err := overlay.Mount(mountpoint, root, os.Getenv, debug)
	if err != nil {
		return fmt.Errorf("failed to mount: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nUnmounting...")
		server.Unmount()
	}()

	fmt.Println("Filesystem mounted. Press Ctrl+C to unmount.")
	server.Wait()

	return nil
}
