package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmate/deskmate/internal/vault"
)

func NewGenerateKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a new vault encryption key",
		Long:  `Generate a random 32 byte key, base64 encoded, for DESKMATE_ENCRYPTION_KEY.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return err
			}

			fmt.Println(key)
			return nil
		},
	}

	return cmd
}
