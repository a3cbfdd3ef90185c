package main

import (
	"fmt"

	"github.com/kursadbilgin/storybird/internal/provider"
	"github.com/spf13/cobra"
)

func vapidKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			publicKey, privateKey, err := provider.GenerateVAPIDKeys()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", publicKey)
			fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", privateKey)
			return nil
		},
	}
}
