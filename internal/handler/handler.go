package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/config"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/service"
	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/vision"
)

// Version is reported by the health endpoint and stamped on every analysis.
const Version = "2.1.0"

// StatsProvider exposes extractor pool counters for the metrics endpoint.
type StatsProvider interface {
	Stats() vision.PoolStats
}

// ModelInfo describes the loaded model artifacts.
type ModelInfo struct {
	Name        string `json:"name"`
	Classifier  string `json:"classifier"`
	ImageSize   int    `json:"image_size"`
	FeatureSize int    `json:"feature_size"`
	Trees       int    `json:"trees"`
}

type Handler struct {
	service service.AnalysisService
	cfg     *config.Config
	pool    StatsProvider
	model   ModelInfo
	log     *zap.Logger
}

func NewHandler(service service.AnalysisService, cfg *config.Config, pool StatsProvider, model ModelInfo, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		pool:    pool,
		model:   model,
		log:     log,
	}
}

func (h *Handler) Analyze(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		h.log.Error("Failed to get file from form", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}

	if file.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty image file"})
		return
	}
	if file.Size > h.cfg.Analysis.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !h.allowedExt(ext) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file format. Only JPG, JPEG, PNG allowed"})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.log.Error("Failed to open file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process file"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.log.Error("Failed to read file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	report, err := h.service.Analyze(c.Request.Context(), data, file.Filename)
	if err != nil {
		h.renderAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) renderAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image could not be decoded"})
	case errors.Is(err, domain.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file format. Only JPG, JPEG, PNG allowed"})
	case errors.Is(err, vision.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is busy, try again shortly"})
	default:
		h.log.Error("Failed to analyze image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to analyze image"})
	}
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	report, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
		return
	}
	if err != nil {
		h.log.Error("Failed to load analysis", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analysis"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) ListAnalyses(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	if limit > 100 {
		limit = 100
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	analyses, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error("Failed to list analyses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list analyses"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analyses": analyses})
}

func (h *Handler) GetImage(c *gin.Context) {
	body, contentType, err := h.service.GetImage(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
		return
	}
	if err != nil {
		h.log.Error("Failed to fetch stored image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stored image"})
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

func (h *Handler) ListStages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stages":     domain.Stages(),
		"disclaimer": domain.Disclaimer,
	})
}

func (h *Handler) GetStage(c *gin.Context) {
	stage, err := strconv.Atoi(c.Param("stage"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stage number"})
		return
	}

	info, ok := domain.StageByNumber(stage)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown stage"})
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"version": Version,
		"model":   h.model,
	})
}

func (h *Handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pool":     h.pool.Stats(),
		"analysis": h.service.Metrics(),
	})
}

func (h *Handler) GetUI(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Stages":     domain.Stages(),
		"Disclaimer": domain.Disclaimer,
		"Version":    Version,
	})
}

func (h *Handler) allowedExt(ext string) bool {
	for _, allowed := range h.cfg.Analysis.AllowedFormats {
		if ext == allowed {
			return true
		}
	}
	return false
}
