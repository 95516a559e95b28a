package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/formpoll/internal/model"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage mailbox sessions",
}

var sessionsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the OAuth tokens for a sender mailbox",
	Long: `Store the OAuth tokens for a sender mailbox.

The access token may be passed with --access-token or through the
FORMPOLL_ACCESS_TOKEN environment variable to keep it out of shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		providerFlag, _ := cmd.Flags().GetString("provider")
		email, _ := cmd.Flags().GetString("email")
		accessToken, _ := cmd.Flags().GetString("access-token")
		refreshToken, _ := cmd.Flags().GetString("refresh-token")

		provider, err := model.ParseProvider(providerFlag)
		if err != nil {
			return err
		}
		email = strings.TrimSpace(email)
		if email == "" {
			return errors.New("--email is required")
		}
		if accessToken == "" {
			accessToken = os.Getenv("FORMPOLL_ACCESS_TOKEN")
		}
		if accessToken == "" {
			return errors.New("--access-token or FORMPOLL_ACCESS_TOKEN is required")
		}

		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.sessions.UpsertSession(cmd.Context(), model.Session{
			Provider:     provider,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			OwnerEmail:   email,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(),
			successLine(fmt.Sprintf("%s session stored for %s (%s backend)", provider, email, a.cfg.Sessions.Backend)))
		return nil
	},
}

func init() {
	sessionsSetCmd.Flags().String("provider", "", "mail provider (google, microsoft)")
	sessionsSetCmd.Flags().String("email", "", "mailbox owner address")
	sessionsSetCmd.Flags().String("access-token", "", "OAuth access token")
	sessionsSetCmd.Flags().String("refresh-token", "", "OAuth refresh token")

	sessionsCmd.AddCommand(sessionsSetCmd)
	rootCmd.AddCommand(sessionsCmd)
}
