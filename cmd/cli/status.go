package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskmate/deskmate/internal/initialization"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connector configuration status",
		Long:  `Display every known connector type and whether it is configured, enabled and healthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	ctx := context.Background()

	config, err := initialization.LoadConfig()
	if err != nil {
		return err
	}

	container, err := initialization.NewAppContainer(ctx, config)
	if err != nil {
		return err
	}

	configs, err := container.ConfigStore.ListConnectorConfigs(ctx)
	if err != nil {
		return err
	}

	configured := make(map[string]bool)
	enabled := make(map[string]bool)
	healthy := make(map[string]string)

	for _, connectorConfig := range configs {
		key := string(connectorConfig.Type)
		configured[key] = true
		enabled[key] = connectorConfig.Enabled
		if connectorConfig.LastHealthyAt != nil {
			healthy[key] = connectorConfig.LastHealthyAt.Format("2006-01-02 15:04:05")
		}
	}

	for _, descriptor := range container.Registry.Descriptors() {
		key := string(descriptor.Type)

		state := "not configured"
		switch {
		case enabled[key]:
			state = "enabled"
		case configured[key]:
			state = "disabled"
		}

		fmt.Printf("%-16s %-14s", key, state)
		if lastHealthy, ok := healthy[key]; ok {
			fmt.Printf(" last healthy %s", lastHealthy)
		}
		fmt.Println()
	}

	return nil
}
