package cmd

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trackhive/user-services/internal/events"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the Pulsar consumer to record user change events",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, initialize the database and set up logging
		commonSetUp()
		defer userDB.Close()

		// Initialize event consumer
		consumer, err := events.NewEventConsumer(appCfg.Pulsar.URL, appCfg.Pulsar.TopicConsumer, appCfg.Pulsar.Subscription)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event consumer")
		}
		defer consumer.Close()

		for {
			msg, err := consumer.ReceiveMessage(context.Background())
			if err != nil {
				log.Error().Err(err).Msg("Error receiving message")
				continue
			}

			var event events.UserEvent
			if err := json.Unmarshal(msg.Payload(), &event); err != nil {
				log.Error().Err(err).Msg("Failed to unmarshal user event")
				consumer.Nack(msg)
				continue
			}

			entry := log.Info().
				Int64("user_id", event.UserID).
				Str("login", event.Login).
				Str("action", event.Action)
			if len(event.Changes) > 0 {
				fields := make([]string, 0, len(event.Changes))
				for field := range event.Changes {
					fields = append(fields, field)
				}
				entry = entry.Strs("changed_fields", fields)
			}
			entry.Msg("user change recorded")

			consumer.Ack(msg)
		}
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
