package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newShiprocketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shiprocket",
		Short: "Query the logistics provider",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "orders",
		Short: "List the orders registered with the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				raw, err := a.services.Shiprocket.ListOrders(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), raw)
			})
		},
	})

	return cmd
}
