package main

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newShipmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shipment",
		Short: "Manage provider shipments",
	}

	var pickupLocation string
	create := &cobra.Command{
		Use:   "create <orderID>",
		Short: "Create the provider shipment for a paid order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid order ID %q: %w", args[0], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.services.Shipping.CreateShipment(ctx, service.CreateShipmentInput{
					OrderID:        orderID,
					PickupLocation: pickupLocation,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	create.Flags().StringVar(&pickupLocation, "pickup-location", "", "provider pickup location, defaults to the configured one")

	cmd.AddCommand(create, newShipmentRecordCmd(), newShipmentReleaseCmd())
	return cmd
}

func newShipmentRecordCmd() *cobra.Command {
	var input service.RecordShipmentInput
	cmd := &cobra.Command{
		Use:   "record <orderID>",
		Short: "Record a shipment the provider created for an order stuck in CREATING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid order ID %q: %w", args[0], err)
			}
			if input.ShipmentID <= 0 {
				return errors.New("--shipment-id must be a positive number")
			}
			input.OrderID = orderID

			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.services.Shipping.RecordShipment(ctx, input)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().Int64Var(&input.ShipmentID, "shipment-id", 0, "provider shipment id")
	cmd.Flags().Int64Var(&input.ShiprocketOrderID, "provider-order-id", 0, "provider order id")
	cmd.Flags().StringVar(&input.AWBCode, "awb", "", "AWB code, when already assigned")
	cmd.Flags().StringVar(&input.ChannelOrderID, "channel-order-id", "", "channel order id reported by the provider")
	return cmd
}

func newShipmentReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <orderID>",
		Short: "Release the shipment claim of an order the provider never received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid order ID %q: %w", args[0], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.services.Shipping.ReleaseShipment(ctx, orderID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released shipment claim for order %s\n", orderID)
				return nil
			})
		},
	}
}
