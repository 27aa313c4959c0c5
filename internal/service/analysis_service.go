package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/events"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/repository"
)

// FeatureExtractor turns a preprocessed image tensor into an embedding vector.
type FeatureExtractor interface {
	Extract(ctx context.Context, tensor []float32) ([]float32, error)
}

// StageClassifier maps an embedding vector to a severity stage and
// a per-stage probability distribution.
type StageClassifier interface {
	Predict(features []float32) (int, []float64, error)
}

// ImagePreprocessor decodes uploaded bytes and converts them into the
// tensor layout the extractor expects.
type ImagePreprocessor interface {
	Decode(data []byte) (image.Image, domain.ImageMeta, error)
	Tensorize(img image.Image) []float32
}

type AnalysisService interface {
	Analyze(ctx context.Context, data []byte, filename string) (*domain.Report, error)
	Get(ctx context.Context, id string) (*domain.Report, error)
	GetImage(ctx context.Context, id string) (io.ReadCloser, string, error)
	List(ctx context.Context, limit, offset int) ([]domain.Analysis, error)
	Metrics() Metrics
}

// Metrics is a snapshot of service counters since startup.
type Metrics struct {
	AnalysesTotal int64 `json:"analyses_total"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	LowConfidence int64 `json:"low_confidence"`
}

// Deps wires the analysis pipeline together. Cache and Events are
// optional, a nil value disables that stage.
type Deps struct {
	Preprocessor ImagePreprocessor
	Extractor    FeatureExtractor
	Classifier   StageClassifier
	Objects      repository.ObjectStore
	Analyses     repository.AnalysisStore
	Cache        repository.ResultCache
	Events       events.Publisher
	Threshold    float64
	ModelVersion string
	Log          *zap.Logger
}

type analysisService struct {
	pre          ImagePreprocessor
	extractor    FeatureExtractor
	classifier   StageClassifier
	objects      repository.ObjectStore
	analyses     repository.AnalysisStore
	cache        repository.ResultCache
	events       events.Publisher
	threshold    float64
	modelVersion string
	log          *zap.Logger

	mu      sync.Mutex
	metrics Metrics
}

func NewAnalysisService(deps Deps) AnalysisService {
	return &analysisService{
		pre:          deps.Preprocessor,
		extractor:    deps.Extractor,
		classifier:   deps.Classifier,
		objects:      deps.Objects,
		analyses:     deps.Analyses,
		cache:        deps.Cache,
		events:       deps.Events,
		threshold:    deps.Threshold,
		modelVersion: deps.ModelVersion,
		log:          deps.Log,
	}
}

func (s *analysisService) Analyze(ctx context.Context, data []byte, filename string) (*domain.Report, error) {
	start := time.Now()

	sum := sha256.Sum256(data)
	imageSHA := hex.EncodeToString(sum[:])

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, imageSHA)
		if err == nil {
			s.countCacheHit()
			s.log.Info("Returning cached analysis",
				zap.String("id", cached.ID),
				zap.String("sha256", imageSHA))
			return s.buildReport(cached, true, domain.Timings{TotalMs: msSince(start)}), nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.log.Warn("Cache lookup failed", zap.Error(err))
		}
		s.countCacheMiss()
	}

	decodeStart := time.Now()
	img, meta, err := s.pre.Decode(data)
	if err != nil {
		return nil, err
	}
	timings := domain.Timings{DecodeMs: msSince(decodeStart)}

	preStart := time.Now()
	tensor := s.pre.Tensorize(img)
	timings.PreprocessMs = msSince(preStart)

	extractStart := time.Now()
	features, err := s.extractor.Extract(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	timings.ExtractMs = msSince(extractStart)

	classifyStart := time.Now()
	stage, distribution, err := s.classifier.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("classify features: %w", err)
	}
	timings.ClassifyMs = msSince(classifyStart)

	if err := domain.ValidateDistribution(distribution); err != nil {
		return nil, fmt.Errorf("classifier output: %w", err)
	}
	if stage < 0 || stage >= domain.NumStages {
		return nil, fmt.Errorf("classifier output: stage %d out of range", stage)
	}

	analysis := &domain.Analysis{
		ID:           uuid.New().String(),
		OriginalName: filename,
		ImageSHA256:  imageSHA,
		Image:        meta,
		Stage:        stage,
		Confidence:   distribution[stage],
		Distribution: distribution,
		FeatureCount: len(features),
		ModelVersion: s.modelVersion,
		CreatedAt:    time.Now().UTC(),
	}
	analysis.StoragePath = "analyses/" + analysis.ID + extensionFor(meta.Format)

	if err := s.objects.Upload(ctx, analysis.StoragePath, bytes.NewReader(data), int64(len(data)), contentTypeFor(meta.Format)); err != nil {
		return nil, fmt.Errorf("archive image: %w", err)
	}
	if err := s.analyses.Create(ctx, analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, imageSHA, analysis); err != nil {
			s.log.Warn("Failed to cache analysis",
				zap.String("id", analysis.ID),
				zap.Error(err))
		}
	}

	lowConfidence := analysis.Confidence < s.threshold
	if s.events != nil {
		if err := s.events.AnalysisCompleted(analysis, lowConfidence); err != nil {
			s.log.Warn("Failed to publish analysis event",
				zap.String("id", analysis.ID),
				zap.Error(err))
		}
	}

	s.countAnalysis(lowConfidence)
	if lowConfidence {
		s.log.Warn("Low confidence prediction",
			zap.String("id", analysis.ID),
			zap.Int("stage", stage),
			zap.Float64("confidence", analysis.Confidence))
	}

	timings.TotalMs = msSince(start)

	s.log.Debug("Pipeline timings",
		zap.String("id", analysis.ID),
		zap.Float64("decode_ms", timings.DecodeMs),
		zap.Float64("preprocess_ms", timings.PreprocessMs),
		zap.Float64("extract_ms", timings.ExtractMs),
		zap.Float64("classify_ms", timings.ClassifyMs))

	s.log.Info("Analysis completed",
		zap.String("id", analysis.ID),
		zap.Int("stage", stage),
		zap.Float64("confidence", analysis.Confidence),
		zap.Float64("total_ms", timings.TotalMs))

	return s.buildReport(analysis, false, timings), nil
}

func (s *analysisService) Get(ctx context.Context, id string) (*domain.Report, error) {
	a, err := s.analyses.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.buildReport(a, false, domain.Timings{}), nil
}

func (s *analysisService) GetImage(ctx context.Context, id string) (io.ReadCloser, string, error) {
	a, err := s.analyses.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	body, contentType, err := s.objects.Download(ctx, a.StoragePath)
	if err != nil {
		return nil, "", fmt.Errorf("fetch stored image: %w", err)
	}
	if contentType == "" {
		contentType = contentTypeFor(a.Image.Format)
	}
	return body, contentType, nil
}

func (s *analysisService) List(ctx context.Context, limit, offset int) ([]domain.Analysis, error) {
	return s.analyses.List(ctx, limit, offset)
}

func (s *analysisService) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *analysisService) buildReport(a *domain.Analysis, cached bool, timings domain.Timings) *domain.Report {
	info, _ := domain.StageByNumber(a.Stage)
	return &domain.Report{
		Analysis:      *a,
		StageInfo:     info,
		LowConfidence: a.Confidence < s.threshold,
		Cached:        cached,
		Timings:       timings,
		Disclaimer:    domain.Disclaimer,
	}
}

func (s *analysisService) countCacheHit() {
	s.mu.Lock()
	s.metrics.CacheHits++
	s.mu.Unlock()
}

func (s *analysisService) countCacheMiss() {
	s.mu.Lock()
	s.metrics.CacheMisses++
	s.mu.Unlock()
}

func (s *analysisService) countAnalysis(lowConfidence bool) {
	s.mu.Lock()
	s.metrics.AnalysesTotal++
	if lowConfidence {
		s.metrics.LowConfidence++
	}
	s.mu.Unlock()
}

func extensionFor(format string) string {
	if format == "png" {
		return ".png"
	}
	return ".jpg"
}

func contentTypeFor(format string) string {
	if format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
