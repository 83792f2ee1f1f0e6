// Package cli wires the config, menu store, agent and the answer-engine
// client into a small cobra front end.
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lifanwar/warung22/internal/config"
	"github.com/lifanwar/warung22/internal/menu"
	"github.com/lifanwar/warung22/internal/perplexity"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "warung22",
	Short: "Natural-language assistant for the Warung22 restaurant menu",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			dir, err := config.Dir()
			if err != nil {
				return err
			}
			configPath = filepath.Join(dir, "config.yaml")
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file (default: user config dir)")
	rootCmd.AddCommand(chatCmd, askCmd, menuCmd, accountCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

// connectClient realizes one client session from the loaded config.
func connectClient(ctx context.Context) (*perplexity.Client, error) {
	client := perplexity.New(cfg.PerplexityCookies)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}
	return client, nil
}

func openStore() (*menu.Store, error) {
	store, err := menu.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open menu store: %w", err)
	}
	return store, nil
}
