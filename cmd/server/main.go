package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fixhub/workshop-backend/internal/audience"
	"github.com/fixhub/workshop-backend/internal/config"
	"github.com/fixhub/workshop-backend/internal/controller"
	"github.com/fixhub/workshop-backend/internal/db"
	"github.com/fixhub/workshop-backend/internal/logging"
	"github.com/fixhub/workshop-backend/internal/queue"
	"github.com/fixhub/workshop-backend/internal/repository"
	"github.com/fixhub/workshop-backend/internal/service"
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

	campaignRepo := &repository.CampaignRepository{DB: conn}
	targetRepo := &repository.TargetRepository{DB: conn}
	customerRepo := &repository.CustomerRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		TargetRepo:   targetRepo,
		Resolver:     audience.NewResolver(customerRepo, cfg.CountryCode, log),
		Events:       events,
		Log:          log,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Log:             log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Group(campaignController.Routes)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown http server")
	}
}
