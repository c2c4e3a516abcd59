package cmd

import "github.com/spf13/cobra"

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted rate limit backoffs",
	Long: `Inspect or clear the governor backoffs checkpointed to the journal.

Buckets are named after the server's rate limit type (for example IP_ADDRESS).
run restores unexpired backoffs on startup.`,
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
