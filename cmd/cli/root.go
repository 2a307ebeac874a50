package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deskmate",
		Short: "Deskmate assistant backend",
		Long: `Deskmate is an assistant backend that connects mail, file, document and
calendar providers and exposes them as tools a language model can call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewStartCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewGenerateKeyCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
