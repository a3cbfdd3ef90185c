package main

import (
	"github.com/spf13/cobra"
)

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "storybird",
		Short:         "Storybird bird feeder video library and push notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCommand(),
		vapidKeysCommand(),
	)

	return rootCmd
}
