package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iliyamo/stay-booking-payments/internal/config"
	"github.com/iliyamo/stay-booking-payments/internal/queue"
)

func deliverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deliver",
		Short: "Consume queued notifications and send them by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			ncfg := config.LoadNotifierConfig()
			mailer := queue.NewMailer(config.LoadMailerConfig(), log)

			log.Info().Str("queue", ncfg.Queue).Msg("delivery worker starting")
			err := queue.NewConsumer(ncfg.AMQPURL, ncfg.Queue, mailer, log).Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("delivery worker stopped")
				return nil
			}
			return err
		},
	}
}
