package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and re-run queued side effects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <eventID>",
		Short: "Reset a failed event so the dispatcher delivers it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event ID %q: %w", args[0], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.services.Outbox.Reset(ctx, eventID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Event %s queued for delivery\n", eventID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run-once",
		Short: "Deliver one batch of due events and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.services.Dispatcher.ProcessBatch(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d event(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <orderID>",
		Short: "List the events queued for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid order ID %q: %w", args[0], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				events, err := a.services.Outbox.ListByAggregate(ctx, orderID)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tATTEMPTS\tNEXT ATTEMPT\tLAST ERROR")
				for _, e := range events {
					lastError := ""
					if e.LastError != nil {
						lastError = *e.LastError
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						e.ID, e.Type, eventState(e), e.Attempts, e.NextAttemptAt.Format(time.RFC3339), lastError)
				}
				return tw.Flush()
			})
		},
	})

	return cmd
}

func eventState(e *domain.OutboxEvent) string {
	switch {
	case e.ProcessedAt != nil:
		return "processed"
	case e.FailedAt != nil:
		return "failed"
	default:
		return "pending"
	}
}
