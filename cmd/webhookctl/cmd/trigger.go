package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/payhuk02/payhula-sub024/internal/tracing"
	"github.com/payhuk02/payhula-sub024/internal/webhook"
)

var (
	triggerData    string
	triggerEventID string
	triggerTopic   string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <store-id> <event-type>",
	Short: "Publish a business event to the delivery engine",
	Long: `Publish a business event to the NSQ events topic. The delivery engine
consumes it and fans out to every matching active subscription.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		storeID, eventType := args[0], args[1]

		var data map[string]any
		if err := json.Unmarshal([]byte(triggerData), &data); err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}

		ctx := cmd.Context()
		if shutdown, err := tracing.InitTracing(ctx, "webhookctl"); err == nil {
			defer shutdown()
		}
		ctx, span := tracing.StartSpan(ctx, "webhookctl.trigger",
			attribute.String("store_id", storeID),
			attribute.String("event_type", eventType),
		)
		defer span.End()

		ev := webhook.NewEvent(storeID, webhook.EventType(eventType), data)
		if triggerEventID != "" {
			ev.ID = triggerEventID
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		// Carry the trace across NSQ so the engine's fan-out spans join it
		ev.TraceHeaders = tracing.PropagateTraceToNSQ(ctx)

		producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq producer: %w", err)
		}
		defer producer.Stop()

		body, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := producer.Publish(triggerTopic, body); err != nil {
			return fmt.Errorf("nsq publish: %w", err)
		}

		if outputJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(ev)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s event %s for store %s\n", ev.Type, ev.ID, ev.StoreID)
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerData, "data", "{}", "event payload as a JSON object")
	triggerCmd.Flags().StringVar(&triggerEventID, "event-id", "", "explicit event id (defaults to a fresh UUID)")
	triggerCmd.Flags().StringVar(&triggerTopic, "topic", "store_events", "NSQ topic to publish to")
	rootCmd.AddCommand(triggerCmd)
}
