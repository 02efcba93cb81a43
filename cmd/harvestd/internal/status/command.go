package status

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/offchainlab/harvestd/cmd/harvestd/internal"
	"github.com/offchainlab/harvestd/pkg/archive"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and dataset size",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return statusCmd()
		},
	}
}

func statusCmd() error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	fmt.Printf("harvestd %s\n\n", internal.FormatVersion())
	fmt.Printf("Keyword:   %s\n", cfg.Keyword)
	fmt.Printf("LLM:       %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("Dedup:     %s\n", cfg.Dedup.Backend)
	fmt.Printf("Gateway:   %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)

	var enabled []string
	if cfg.Channels.Discord.Enabled {
		enabled = append(enabled, "discord")
	}
	if cfg.Channels.Telegram.Enabled {
		enabled = append(enabled, "telegram")
	}
	if cfg.Channels.Feishu.Enabled {
		enabled = append(enabled, "feishu")
	}
	if len(enabled) == 0 {
		fmt.Println("Channels:  none enabled")
	} else {
		fmt.Printf("Channels:  %s\n", strings.Join(enabled, ", "))
	}

	if cfg.Relay.Enabled {
		fmt.Printf("Relay:     -> %s (window %s)\n",
			cfg.Relay.DestinationChatID, cfg.Relay.FreshnessWindow())
	} else {
		fmt.Println("Relay:     disabled")
	}

	store, err := archive.NewStore(cfg.Dataset.Path)
	if err != nil {
		return fmt.Errorf("error opening dataset: %w", err)
	}
	count, err := store.Count()
	if err != nil {
		return fmt.Errorf("error reading dataset: %w", err)
	}
	fmt.Printf("\nDataset:   %s (%d records)\n", cfg.Dataset.Path, count)

	return nil
}
