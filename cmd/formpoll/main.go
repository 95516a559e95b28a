package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "formpoll",
	Short: "Detect candidate replies to information-request forms",
	Long: `formpoll watches recruiter mailboxes for candidate replies to
information-request emails, extracts the answers and marks the form completed.

Examples:
  formpoll sessions set --provider google --email recruiter@company.com --access-token $TOKEN
  formpoll forms add --sender recruiter@company.com --candidate jane@example.com
  formpoll serve`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.config/formpoll/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}
