package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/payhuk02/payhula-sub024/internal/store/postgres"
)

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries <event-id>",
	Short: "Show the delivery history recorded for an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventID := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, err := pools.Get(ctx, dsn)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}

		logs, err := postgres.New(pool).DeliveriesByEvent(ctx, eventID)
		if err != nil {
			return err
		}

		if outputJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(logs)
		}

		if len(logs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no deliveries recorded for event %s\n", eventID)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWEBHOOK\tSTATUS\tATTEMPTS\tHTTP\tDURATION\tNEXT ATTEMPT\tERROR")
		for _, l := range logs {
			httpStatus := "-"
			if l.ResponseStatusCode != nil {
				httpStatus = fmt.Sprintf("%d", *l.ResponseStatusCode)
			}
			nextAt := "-"
			if l.NextAttemptAt != nil {
				nextAt = l.NextAttemptAt.Format(time.RFC3339)
			}
			errMsg := "-"
			if l.ErrorMessage != nil {
				errMsg = *l.ErrorMessage
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%dms\t%s\t%s\n",
				l.ID, l.WebhookID, l.Status, l.AttemptCount, l.MaxAttempts,
				httpStatus, l.DurationMs, nextAt, errMsg)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(deliveriesCmd)
}
