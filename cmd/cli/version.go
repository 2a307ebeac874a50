package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmate/deskmate/internal/version"
)

func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()

			fmt.Printf("deskmate %s\n", info.Version)
			if info.GitCommit != "" {
				fmt.Printf("  commit: %s\n", info.GitCommit)
			}
			fmt.Printf("  go:     %s\n", info.GoVersion)
			fmt.Printf("  os:     %s\n", info.Platform)

			return nil
		},
	}

	return cmd
}
