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

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions <store-id>",
	Short: "List a store's webhook subscriptions and their counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		storeID := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, err := pools.Get(ctx, dsn)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}

		subs, err := postgres.New(pool).SubscriptionsByStore(ctx, storeID)
		if err != nil {
			return err
		}

		if outputJSON {
			// Subscriptions carry their secret; strip it before printing
			type subView struct {
				ID              string     `json:"id"`
				EventType       string     `json:"event_type"`
				TargetURL       string     `json:"target_url"`
				IsActive        bool       `json:"is_active"`
				MaxAttempts     int        `json:"max_attempts"`
				TriggerCount    int64      `json:"trigger_count"`
				SuccessCount    int64      `json:"success_count"`
				FailureCount    int64      `json:"failure_count"`
				LastTriggeredAt *time.Time `json:"last_triggered_at"`
			}
			views := make([]subView, 0, len(subs))
			for _, s := range subs {
				views = append(views, subView{
					ID:              s.ID,
					EventType:       string(s.EventType),
					TargetURL:       s.TargetURL,
					IsActive:        s.IsActive,
					MaxAttempts:     s.MaxAttempts,
					TriggerCount:    s.TriggerCount,
					SuccessCount:    s.SuccessCount,
					FailureCount:    s.FailureCount,
					LastTriggeredAt: s.LastTriggeredAt,
				})
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(views)
		}

		if len(subs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no subscriptions for store %s\n", storeID)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEVENT\tURL\tACTIVE\tTRIGGERS\tOK\tFAILED\tLAST TRIGGERED")
		for _, s := range subs {
			lastAt := "-"
			if s.LastTriggeredAt != nil {
				lastAt = s.LastTriggeredAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\t%d\t%s\n",
				s.ID, s.EventType, s.TargetURL, s.IsActive,
				s.TriggerCount, s.SuccessCount, s.FailureCount, lastAt)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(subscriptionsCmd)
}
