package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/config"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/delivery/httpd"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/gateway"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/queue"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/repository"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/service"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/service/integration"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/worker"
)

type App struct {
	server      *http.Server
	logger      zerolog.Logger
	config      *config.Config
	db          *sql.DB
	checkWorker worker.CheckWorker
	hub         *gateway.Hub
	broker      queue.Broker
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	broker, err := queue.NewBroker(cfg.RabbitMQ.URL, log)
	if err != nil {
		return nil, err
	}

	if err := broker.SetupQueue(
		cfg.RabbitMQ.Exchange,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.RoutingKey,
	); err != nil {
		return nil, err
	}

	publisher := queue.NewPublisher(broker.Channel(), log)
	consumer := queue.NewConsumer(
		broker.Channel(),
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.ConsumerTag,
		cfg.RabbitMQ.PrefetchCount,
		log,
	)

	submissionRepo := repository.NewSubmissionRepository(db, log)
	checkRepo := repository.NewCheckRepository(db, log)
	jobRepo := repository.NewJobRepository(db, log)

	checkQueue := queue.NewCheckQueue(jobRepo, publisher, queue.Config{
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
	}, log)

	scoringClient := integration.NewScoringClient(
		cfg.Scoring.URL,
		cfg.Scoring.APIKey,
		cfg.Scoring.Timeout,
		log,
	)

	identityClient := integration.NewIdentityClient(
		cfg.Identity.URL,
		cfg.Identity.Timeout,
		cfg.Identity.RetryCount,
		cfg.Identity.RetryDelay,
		log,
	)

	checkService := service.NewCheckService(
		submissionRepo,
		checkRepo,
		checkQueue,
		service.CheckConfig{
			MaxAttempts: cfg.Worker.MaxAttempts,
			BackoffBase: cfg.Worker.BackoffBase,
			Language:    cfg.Scoring.Language,
			Country:     cfg.Scoring.Country,
		},
		log,
	)

	registry := gateway.NewRegistry()
	throttle := gateway.NewThrottle(cfg.Gateway.ThrottleWindow)

	hub := gateway.NewHub(identityClient, cfg.Gateway, log)
	router := gateway.NewRouter(registry, hub, throttle, submissionRepo, log)
	hub.SetRouter(router)

	pool := worker.NewWorkerPool(cfg.Worker.MaxWorkers, log)

	checkWorker := worker.NewCheckWorker(
		pool,
		consumer,
		checkQueue,
		submissionRepo,
		checkRepo,
		scoringClient,
		router,
		worker.Config{
			CleanInterval: cfg.Worker.CleanInterval,
			CleanAge:      cfg.Worker.CleanAge,
		},
		log,
	)

	handler := httpd.NewHandler(
		checkService,
		checkWorker,
		hub,
		registry,
		repository.NewPostgresRepository(db, log),
		log,
	)

	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:      server,
		logger:      log,
		config:      cfg,
		db:          db,
		checkWorker: checkWorker,
		hub:         hub,
		broker:      broker,
	}, nil
}

func (a *App) Run() error {
	ctx := context.Background()
	if err := a.checkWorker.Start(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start check worker")
		return err
	}

	a.logger.Info().Msgf("Starting scoring gateway on %s", a.config.Server.Address)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down scoring gateway...")

	if err := a.checkWorker.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop check worker")
	}

	a.hub.CloseAll()

	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}

	a.logger.Info().Msg("Scoring gateway stopped")
	return nil
}
