package main

import (
	"github.com/spf13/cobra"
)

func newDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete POINTER...",
		Short: "Delete stored objects by pointer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return client.DeleteOne(cmd.Context(), args[0])
			}
			return client.DeleteMany(cmd.Context(), args)
		},
	}
}
