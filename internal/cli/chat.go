package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/lifanwar/warung22/internal/agent"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive menu chatbot",
	Long: `Start an interactive session. Commands inside the session:
  .menu     show the cached menu
  .refresh  reload the cache from the database
  exit      leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() { shutdown.Monitor(cancel) }()

		client, err := connectClient(ctx)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		a := agent.New(client, store, cfg.Language)

		sc := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for sc.Scan() {
			if ctx.Err() != nil {
				break
			}
			line := strings.TrimSpace(sc.Text())
			switch line {
			case "":
			case "exit":
				return nil
			case ".menu":
				fmt.Println(store.Context())
			case ".refresh":
				if err := store.Refresh(); err != nil {
					ancli.Errf("failed to refresh cache: %v\n", err)
				} else {
					ancli.Okf("cache refreshed\n")
				}
			default:
				answer, err := a.Ask(ctx, line)
				if err != nil {
					ancli.Errf("%v\n", err)
				} else {
					fmt.Println(answer)
				}
			}
			fmt.Print("> ")
		}
		return sc.Err()
	},
}
