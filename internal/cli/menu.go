package cli

import (
	"fmt"
	"strconv"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/lifanwar/warung22/internal/menu"
	"github.com/spf13/cobra"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Manage the cached menu",
}

var menuListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the menu grouped by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprint(cmd.OutOrStdout(), store.Context())
		return nil
	},
}

var menuAddCmd = &cobra.Command{
	Use:   "add <category> <name> <price>",
	Short: "Add a menu item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid price '%v': %w", args[2], err)
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		created, err := store.Create(menu.Item{
			Category:  args[0],
			Name:      args[1],
			Price:     price,
			Available: true,
		})
		if err != nil {
			return err
		}
		ancli.Okf("created item %v: %v (%v) at %v\n", created.ID, created.Name, created.Category, created.Price)
		return nil
	},
}

var menuRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a menu item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id '%v': %w", args[0], err)
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Delete(id); err != nil {
			return err
		}
		ancli.Okf("removed item %v\n", id)
		return nil
	},
}

func init() {
	menuCmd.AddCommand(menuListCmd, menuAddCmd, menuRemoveCmd)
}
