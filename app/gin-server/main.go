package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/vibematch/config"
	"github.com/yoockh/vibematch/internal/api/handlers"
	"github.com/yoockh/vibematch/internal/api/middleware"
	"github.com/yoockh/vibematch/internal/api/routes"
	"github.com/yoockh/vibematch/internal/cache"
	"github.com/yoockh/vibematch/internal/events"
	"github.com/yoockh/vibematch/internal/logger"
	"github.com/yoockh/vibematch/internal/metrics"
	"github.com/yoockh/vibematch/internal/models"
	"github.com/yoockh/vibematch/internal/providers/llm"
	"github.com/yoockh/vibematch/internal/repositories"
	"github.com/yoockh/vibematch/internal/repositories/memory"
	mongorepo "github.com/yoockh/vibematch/internal/repositories/mongo"
	pgrepo "github.com/yoockh/vibematch/internal/repositories/postgres"
	"github.com/yoockh/vibematch/internal/services"
	"github.com/yoockh/vibematch/internal/storage"
	"github.com/yoockh/vibematch/internal/workers"
)

type stores struct {
	profiles   repositories.ProfileRepository
	queue      repositories.QueueRepository
	embeddings repositories.EmbeddingRepository
	countries  repositories.CountryRepository
}

func openStores(cfg *config.AppConfig, log *logrus.Logger) (stores, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store; data is lost on restart")
		s := memory.NewStore()
		return stores{s.Profiles(), s.Queue(), s.Embeddings(), s.Countries()}, nil
	}

	if err := config.InitPostgres(); err != nil {
		return stores{}, err
	}
	if err := config.EnsurePostgresSchema(config.PostgresDB, cfg.EmbeddingDims); err != nil {
		return stores{}, err
	}
	log.Info("PostgreSQL connected")
	db := config.PostgresDB
	return stores{
		profiles:   pgrepo.NewProfileRepo(db),
		queue:      pgrepo.NewQueueRepo(db),
		embeddings: pgrepo.NewEmbeddingRepo(db),
		countries:  pgrepo.NewCountryRepo(db),
	}, nil
}

func optional(log *logrus.Logger, name string, err error) bool {
	switch {
	case err == nil:
		log.Infof("%s connected", name)
		return true
	case errors.Is(err, config.ErrNotConfigured):
		log.Infof("%s not configured, skipping", name)
	default:
		log.WithError(err).Warnf("%s unavailable, continuing without it", name)
	}
	return false
}

func main() {
	_ = godotenv.Load()
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("store init failed")
	}

	optional(log, "Redis", config.InitRedis())
	rdb := config.RedisClient

	var journalRepo repositories.JournalRepository
	if optional(log, "MongoDB", config.InitMongo()) {
		if err := config.EnsureMongoIndexes(); err != nil {
			log.WithError(err).Warn("failed to ensure journal indexes")
		}
		journalRepo = mongorepo.NewJournalRepo(config.MongoDatabase(), config.JournalCollection, cfg.JournalTTL)
	}

	var archive storage.Uploader
	if cfg.ImportArchiveBkt != "" {
		up, err := storage.NewGCSUploader(ctx, cfg.ImportArchiveBkt, cfg.ImportArchivePfx)
		if err != nil {
			log.WithError(err).Warn("import archive disabled")
		} else {
			defer up.Close()
			archive = up
		}
	}

	openaiGW, err := llm.NewOpenAIGateway(llm.OpenAIConfig{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		ChatModel:         cfg.ChatModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		Dimensions:        cfg.EmbeddingDims,
		MaxRetries:        cfg.AIMaxRetries,
		RequestsPerSecond: cfg.AIRequestsPerSec,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("AI gateway init failed")
	}
	var gateway llm.Gateway = openaiGW
	if cfg.ChatProvider == "vertex" {
		gemini, err := llm.NewVertexGemini(ctx, cfg.VertexProjectID, cfg.VertexLocation, cfg.VertexModel)
		if err != nil {
			log.WithError(err).Fatal("Vertex AI init failed")
		}
		defer gemini.Close()
		gateway = llm.Compose(gemini, openaiGW)
	}

	m := metrics.New(cfg.ServiceName)
	c := cache.New(rdb)

	queueSvc := services.NewQueueService(st.queue, services.QueueOptions{
		MaxRetries: cfg.QueueMaxRetries,
		DeadPolicy: models.DeadPolicy(cfg.QueueDeadPolicy),
	}, log)
	profileSvc := services.NewProfileService(st.profiles, queueSvc, archive, log)
	parsingSvc := services.NewParsingService(st.profiles, gateway, services.ParsingOptions{Model: cfg.ParseModel}, log)
	embeddingSvc := services.NewEmbeddingService(st.profiles, st.embeddings, gateway, c, services.EmbeddingOptions{
		Model:         cfg.EmbeddingModel,
		Dimensions:    cfg.EmbeddingDims,
		QueryCacheTTL: cfg.QueryCacheTTL,
	}, log)
	composer := services.NewCompositionService(gateway, services.CompositionOptions{
		ChatModel:        cfg.ChatModel,
		NarrativeTimeout: cfg.NarrativeTimeout,
	}, m, log)
	searchSvc := services.NewSearchService(st.profiles, st.embeddings, embeddingSvc, composer, m, log)
	matchSvc := services.NewMatchService(st.profiles, st.embeddings, embeddingSvc, composer, m, log)
	countrySvc := services.NewCountryService(st.profiles, st.countries, c, cfg.CountryCacheTTL, log)
	journalSvc := services.NewJournalService(journalRepo, log)

	worker := &workers.EmbeddingWorker{
		Queue:         queueSvc,
		Parser:        parsingSvc,
		Embeddings:    embeddingSvc,
		Countries:     countrySvc,
		Journal:       journalSvc,
		Events:        events.New(rdb),
		Metrics:       m,
		Logger:        log,
		Concurrency:   cfg.WorkerConcurrency,
		IdleInterval:  cfg.WorkerIdle,
		ErrorBackoff:  cfg.WorkerBackoff,
		ItemTimeout:   cfg.WorkerItemTimeout,
		SyncCountries: cfg.SyncCountries,
	}

	var runner handlers.BatchRunner
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		runner = worker
		go func() {
			defer close(workerDone)
			if err := worker.Run(ctx); err != nil {
				log.WithError(err).Error("embedding worker exited")
			}
		}()
	} else {
		close(workerDone)
		log.Warn("embedding worker disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, m))

	routes.RegisterRoutes(r, routes.Deps{
		Profile: handlers.NewProfileHandler(profileSvc, parsingSvc),
		Queue:   handlers.NewQueueHandler(queueSvc, journalSvc, runner),
		Search:  handlers.NewSearchHandler(searchSvc, matchSvc),
		Country: handlers.NewCountryHandler(countrySvc),
		WS:      handlers.NewWSHandler(rdb, log),
		Metrics: m.Handler(),
		Admin: []gin.HandlerFunc{
			middleware.JWTAuth(middleware.JWTConfig{
				Secret:   cfg.JWTSecret,
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
			}),
			middleware.RequireAdmin(),
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn("embedding worker did not finish its batch before shutdown timeout")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if config.MongoClient != nil {
		_ = config.MongoClient.Disconnect(context.Background())
	}
}
