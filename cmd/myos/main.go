// Command myos mounts and manages project trees governed by MyOS's
// template-backed overlay filesystem.
package main

import (
	"fmt"
	"os"

	"github.com/Palmstroemen/MyOS/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
