package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudshare/cloudshare-api/cmd/gatectl/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "gatectl",
		Short:         "Inspect and test the CloudShare API token gate",
		Long:          "CLI tool for checking the identity provider's keys, verifying tokens and showing the effective gate configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewKeysCmd())
	rootCmd.AddCommand(commands.NewVerifyCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
