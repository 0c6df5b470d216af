package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const logo = `
   _             _           _
  (_) ___  _ __ | |__   ___ | |_
  | |/ _ \| '_ \| '_ \ / _ \| __|
  | | (_) | | | | |_) | (_) | |_
 _/ |\___/|_| |_|_.__/ \___/ \__|
|__/
`

var rootCmd = &cobra.Command{
	Use:   "jonbot",
	Short: "Slack image generation bot",
	Long: color.CyanString(logo) + `
jonbot turns slash commands, mentions and reactions in Slack into
generated images posted back to the conversation.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
