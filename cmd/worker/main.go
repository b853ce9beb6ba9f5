// The worker is the single process driving all campaign dispatch. Running
// more than one instance would defeat the anti-ban guarantees; the outbound
// channel is one logical session.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fixhub/workshop-backend/internal/config"
	"github.com/fixhub/workshop-backend/internal/db"
	"github.com/fixhub/workshop-backend/internal/dispatch"
	"github.com/fixhub/workshop-backend/internal/logging"
	"github.com/fixhub/workshop-backend/internal/queue"
	"github.com/fixhub/workshop-backend/internal/repository"
	"github.com/fixhub/workshop-backend/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(true)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogPretty)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	events, err := queue.Dial(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to rabbitmq")
	}
	defer events.Close()

	gate := dispatch.NewTransportGate(transport.NewGateway(cfg.GatewayURL, cfg.GatewayToken))

	scheduler := dispatch.NewScheduler(
		&repository.CampaignRepository{DB: conn},
		&repository.TargetRepository{DB: conn},
		gate,
		dispatch.Config{
			RespectBusinessHours: cfg.RespectBusinessHours,
			SendTimeout:          cfg.SendTimeout,
			PollInterval:         cfg.PollInterval,
			MaxAttempts:          cfg.MaxAttempts,
			RetryBackoff:         cfg.RetryBackoff,
		},
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := events.Consume(ctx, func(ev queue.Event) {
			log.Debug().Int("campaign_id", ev.CampaignID).Str("action", ev.Action).
				Msg("campaign event received")
			scheduler.Wake()
		}); err != nil {
			log.Error().Err(err).Msg("event consumer stopped")
		}
	}()

	schedErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		schedErr <- scheduler.Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down, letting in-flight send finish")
	case err := <-schedErr:
		if err != nil {
			log.Error().Err(err).Msg("dispatch scheduler failed")
		}
	}
	cancel()
	wg.Wait()
}
