package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/config"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/events"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/forest"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/handler"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/repository"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/service"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/vision"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger

	pool     *vision.Pool
	analyses repository.AnalysisStore
	cache    repository.ResultCache
	events   events.Publisher
}

func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.LoadHTMLGlob("web/templates/*")

	objects, err := repository.NewS3Store(&cfg.S3, log.Named("s3"))
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	analyses, err := repository.NewPostgresStore(cfg.Postgres.DSN, log.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis store: %w", err)
	}

	pool, err := vision.NewPool(cfg.Model.Path, cfg.Model.MetadataPath, cfg.Model.SharedLib, cfg.Model.Workers, log.Named("vision"))
	if err != nil {
		analyses.Close()
		return nil, fmt.Errorf("failed to create extractor pool: %w", err)
	}

	classifier, err := forest.Load(cfg.Model.ForestPath)
	if err != nil {
		pool.Close()
		analyses.Close()
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}

	// The classifier must agree with the extractor it was trained against.
	if classifier.NFeatures != pool.FeatureSize() {
		pool.Close()
		analyses.Close()
		return nil, fmt.Errorf("classifier expects %d features, extractor produces %d", classifier.NFeatures, pool.FeatureSize())
	}
	if classifier.NClasses != domain.NumStages {
		pool.Close()
		analyses.Close()
		return nil, fmt.Errorf("classifier has %d classes, want %d stages", classifier.NClasses, domain.NumStages)
	}

	var cache repository.ResultCache
	if cfg.Redis.Addr != "" {
		cache = repository.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.TTL, log.Named("cache"))
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("events"))
		if err != nil {
			pool.Close()
			analyses.Close()
			if cache != nil {
				cache.Close()
			}
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
	}

	svc := service.NewAnalysisService(service.Deps{
		Preprocessor: vision.NewPreprocessor(pool.Metadata()),
		Extractor:    pool,
		Classifier:   classifier,
		Objects:      objects,
		Analyses:     analyses,
		Cache:        cache,
		Events:       publisher,
		Threshold:    cfg.Analysis.ConfidenceThreshold,
		ModelVersion: handler.Version,
		Log:          log.Named("service"),
	})

	h := handler.NewHandler(svc, cfg, pool, handler.ModelInfo{
		Name:        pool.Metadata().ModelName,
		Classifier:  "random_forest",
		ImageSize:   pool.Metadata().ImageSize,
		FeatureSize: pool.FeatureSize(),
		Trees:       len(classifier.Trees),
	}, log.Named("handler"))

	router.GET("/", h.GetUI)
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", h.Metrics)

	api := router.Group("/api/v1")
	{
		api.POST("/analyses", h.Analyze)
		api.GET("/analyses", h.ListAnalyses)
		api.GET("/analyses/:id", h.GetAnalysis)
		api.GET("/analyses/:id/image", h.GetImage)
		api.GET("/stages", h.ListStages)
		api.GET("/stages/:stage", h.GetStage)
	}

	router.Static("/static", "./web/static")

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg:      cfg,
		log:      log,
		pool:     pool,
		analyses: analyses,
		cache:    cache,
		events:   publisher,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("model", pool.Metadata().ModelName),
		zap.Int("trees", len(classifier.Trees)))

	return server, nil
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests first, then releases the pipeline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")

	err := s.httpServer.Shutdown(ctx)

	s.pool.Close()
	if s.events != nil {
		if cerr := s.events.Close(); cerr != nil {
			s.log.Warn("Failed to close event publisher", zap.Error(cerr))
		}
	}
	if s.cache != nil {
		if cerr := s.cache.Close(); cerr != nil {
			s.log.Warn("Failed to close cache", zap.Error(cerr))
		}
	}
	if cerr := s.analyses.Close(); cerr != nil {
		s.log.Warn("Failed to close analysis store", zap.Error(cerr))
	}

	return err
}
