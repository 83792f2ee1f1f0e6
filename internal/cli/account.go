package cli

import (
	"context"
	"errors"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/lifanwar/warung22/internal/emailnator"
	"github.com/lifanwar/warung22/internal/perplexity"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Provision a fresh answer-engine account, renewing the pro query budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.EmailnatorCookies) == 0 {
			return errors.New("emailnator_cookies missing from config, account provisioning needs a mailbox session")
		}
		client, err := connectClient(cmd.Context())
		if err != nil {
			return err
		}
		err = client.CreateAccount(cmd.Context(), func(ctx context.Context) (perplexity.Mailbox, error) {
			return emailnator.New(ctx, cfg.EmailnatorCookies)
		})
		if err != nil {
			return err
		}
		copilot, fileUpload := client.Balances()
		ancli.Okf("account ready: %v pro queries, %v file uploads\n", copilot, fileUpload)
		return nil
	},
}
