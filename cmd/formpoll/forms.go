package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/store"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Manage information-request forms",
}

var formsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a form that was sent to a candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		sender, _ := cmd.Flags().GetString("sender")
		candidate, _ := cmd.Flags().GetString("candidate")
		token, _ := cmd.Flags().GetString("token")
		sentAt, _ := cmd.Flags().GetString("sent-at")

		if sender == "" || candidate == "" {
			return errors.New("--sender and --candidate are required")
		}

		f := model.PendingForm{
			Token:          token,
			SenderEmail:    strings.TrimSpace(sender),
			CandidateEmail: strings.TrimSpace(candidate),
		}
		if sentAt != "" {
			t, err := time.Parse(time.RFC3339, sentAt)
			if err != nil {
				return fmt.Errorf("parsing --sent-at: %w", err)
			}
			f.CreatedAt = t
		}

		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.store.CreateForm(cmd.Context(), f)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), successLine("form "+created.Token+" is pending"))
		return nil
	},
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List forms, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.FormFilter{Limit: limit}
		if statusFlag != "" {
			status := model.FormStatus(strings.ToLower(statusFlag))
			if status != model.FormStatusPending && status != model.FormStatusCompleted {
				return fmt.Errorf("unknown status %q", statusFlag)
			}
			filter.Status = &status
		}

		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		forms, err := a.store.ListForms(cmd.Context(), filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(forms) == 0 {
			fmt.Fprintln(out, "No forms found.")
			return nil
		}
		fmt.Fprint(out, renderFormTable(forms))
		return nil
	},
}

var formsShowCmd = &cobra.Command{
	Use:   "show <token>",
	Short: "Show a single form and its answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.store.GetForm(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("form %s not found", args[0])
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderForm(*f))
		return nil
	},
}

func init() {
	formsAddCmd.Flags().String("sender", "", "mailbox the request was sent from")
	formsAddCmd.Flags().String("candidate", "", "address a reply is expected from")
	formsAddCmd.Flags().String("token", "", "form token (generated when empty)")
	formsAddCmd.Flags().String("sent-at", "", "RFC 3339 time the request was sent (default now)")

	formsListCmd.Flags().String("status", "", "filter by status (pending, completed)")
	formsListCmd.Flags().Int("limit", 50, "maximum number of forms")

	formsCmd.AddCommand(formsAddCmd)
	formsCmd.AddCommand(formsListCmd)
	formsCmd.AddCommand(formsShowCmd)
	rootCmd.AddCommand(formsCmd)
}
