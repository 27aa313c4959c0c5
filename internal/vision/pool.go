package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const acquireTimeout = 5 * time.Second

// ErrBusy is returned when no extractor frees up within the acquire timeout.
var ErrBusy = errors.New("all extractor sessions are busy")

type PoolStats struct {
	Size     int   `json:"size"`
	InUse    int   `json:"in_use"`
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
	Timeouts int64 `json:"timeouts"`
	Failures int64 `json:"failures"`
}

// Pool owns the ONNX runtime environment and a fixed set of extractor
// sessions handed out one caller at a time.
type Pool struct {
	sessions chan *Extractor
	md       *Metadata
	log      *zap.Logger

	mu       sync.Mutex
	size     int
	inUse    int
	acquired int64
	released int64
	timeouts int64
	failures int64
	closed   bool
}

func NewPool(modelPath, metadataPath, sharedLib string, size int, log *zap.Logger) (*Pool, error) {
	md, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if sharedLib != "" {
		ort.SetSharedLibraryPath(sharedLib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	if size <= 0 {
		size = 1
	}
	pool := &Pool{
		sessions: make(chan *Extractor, size),
		md:       md,
		log:      log,
		size:     size,
	}

	for i := 0; i < size; i++ {
		ext, err := newExtractor(modelPath, md)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize extractor %d: %w", i, err)
		}
		pool.sessions <- ext
	}

	log.Info("Extractor pool ready",
		zap.String("model", md.ModelName),
		zap.Int("size", size),
		zap.Int("feature_size", md.FeatureSize()))

	return pool, nil
}

// Extract runs the tensor through a pooled session, waiting up to the acquire
// timeout for one to free up.
func (p *Pool) Extract(ctx context.Context, tensor []float32) ([]float32, error) {
	ext, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	features, err := ext.extract(tensor)
	p.release(ext)
	if err != nil {
		p.mu.Lock()
		p.failures++
		p.mu.Unlock()
	}
	return features, err
}

func (p *Pool) acquire(ctx context.Context) (*Extractor, error) {
	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	select {
	case ext := <-p.sessions:
		p.mu.Lock()
		p.inUse++
		p.acquired++
		p.mu.Unlock()
		return ext, nil
	case <-timer.C:
		p.mu.Lock()
		p.timeouts++
		p.mu.Unlock()
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(ext *Extractor) {
	p.mu.Lock()
	p.inUse--
	p.released++
	closed := p.closed
	p.mu.Unlock()

	if closed {
		ext.destroy()
		return
	}
	p.sessions <- ext
}

// Close destroys pooled sessions and the runtime environment. Call only after
// in-flight extractions have drained.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case ext := <-p.sessions:
			ext.destroy()
		default:
			ort.DestroyEnvironment()
			return
		}
	}
}

func (p *Pool) Metadata() *Metadata {
	return p.md
}

func (p *Pool) FeatureSize() int {
	return p.md.FeatureSize()
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Size:     p.size,
		InUse:    p.inUse,
		Acquired: p.acquired,
		Released: p.released,
		Timeouts: p.timeouts,
		Failures: p.failures,
	}
}
