package domain

import (
	"fmt"
	"math"
	"time"
)

// NumStages is the number of diabetic retinopathy severity grades (0-4).
const NumStages = 5

const distributionTolerance = 1e-9

type ImageMeta struct {
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`
}

type Analysis struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	StoragePath  string    `json:"storage_path"`
	ImageSHA256  string    `json:"image_sha256"`
	Image        ImageMeta `json:"image"`
	Stage        int       `json:"stage"`
	Confidence   float64   `json:"confidence"`
	Distribution []float64 `json:"distribution"`
	FeatureCount int       `json:"feature_count"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
}

type Timings struct {
	DecodeMs     float64 `json:"decode_ms"`
	PreprocessMs float64 `json:"preprocess_ms"`
	ExtractMs    float64 `json:"extract_ms"`
	ClassifyMs   float64 `json:"classify_ms"`
	TotalMs      float64 `json:"total_ms"`
}

// Report is the full screening result returned to clients: the stored
// analysis plus the stage guidance that goes with it.
type Report struct {
	Analysis      Analysis  `json:"analysis"`
	StageInfo     StageInfo `json:"stage_info"`
	LowConfidence bool      `json:"low_confidence"`
	Cached        bool      `json:"cached"`
	Timings       Timings   `json:"timings"`
	Disclaimer    string    `json:"disclaimer"`
}

// ValidateDistribution checks that dist is a probability distribution over
// the five stages: one component per stage, each in [0,1], summing to 1.
func ValidateDistribution(dist []float64) error {
	if len(dist) != NumStages {
		return fmt.Errorf("distribution has %d components, want %d", len(dist), NumStages)
	}
	sum := 0.0
	for i, p := range dist {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("distribution component %d out of range: %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > distributionTolerance {
		return fmt.Errorf("distribution sums to %v, want 1", sum)
	}
	return nil
}
