package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
)

const initTableQuery = `CREATE TABLE IF NOT EXISTS analyses (
	id            text PRIMARY KEY,
	original_name text NOT NULL,
	storage_path  text NOT NULL,
	image_sha256  text NOT NULL,
	format        text NOT NULL,
	width         integer NOT NULL,
	height        integer NOT NULL,
	size_bytes    bigint NOT NULL,
	stage         integer NOT NULL,
	confidence    double precision NOT NULL,
	distribution  text NOT NULL,
	feature_count integer NOT NULL,
	model_version text NOT NULL,
	created_at    timestamptz NOT NULL
)`

const (
	createAnalysisQuery = `INSERT INTO analyses (id, original_name, storage_path, image_sha256,
		format, width, height, size_bytes, stage, confidence, distribution, feature_count,
		model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	readAnalysisQuery = `SELECT id, original_name, storage_path, image_sha256, format, width,
		height, size_bytes, stage, confidence, distribution, feature_count, model_version, created_at
		FROM analyses WHERE id = $1`

	listAnalysesQuery = `SELECT id, original_name, storage_path, image_sha256, format, width,
		height, size_bytes, stage, confidence, distribution, feature_count, model_version, created_at
		FROM analyses ORDER BY created_at DESC LIMIT $1 OFFSET $2`
)

// AnalysisStore persists completed screenings.
type AnalysisStore interface {
	Create(ctx context.Context, a *domain.Analysis) error
	Get(ctx context.Context, id string) (*domain.Analysis, error)
	List(ctx context.Context, limit, offset int) ([]domain.Analysis, error)
	Close() error
}

type postgresStore struct {
	db  *sql.DB
	log *zap.Logger
}

func NewPostgresStore(dsn string, log *zap.Logger) (AnalysisStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, initTableQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("create analyses table: %w", err)
	}

	log.Info("Postgres store ready")

	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Create(ctx context.Context, a *domain.Analysis) error {
	distribution, err := json.Marshal(a.Distribution)
	if err != nil {
		return fmt.Errorf("encode distribution: %w", err)
	}

	_, err = s.db.ExecContext(ctx, createAnalysisQuery,
		a.ID,
		a.OriginalName,
		a.StoragePath,
		a.ImageSHA256,
		a.Image.Format,
		a.Image.Width,
		a.Image.Height,
		a.Image.SizeBytes,
		a.Stage,
		a.Confidence,
		string(distribution),
		a.FeatureCount,
		a.ModelVersion,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	return nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	row := s.db.QueryRowContext(ctx, readAnalysisQuery, id)

	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select analysis: %w", err)
	}
	return a, nil
}

func (s *postgresStore) List(ctx context.Context, limit, offset int) ([]domain.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, listAnalysesQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]domain.Analysis, 0, limit)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	return analyses, nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var distribution string

	err := row.Scan(
		&a.ID,
		&a.OriginalName,
		&a.StoragePath,
		&a.ImageSHA256,
		&a.Image.Format,
		&a.Image.Width,
		&a.Image.Height,
		&a.Image.SizeBytes,
		&a.Stage,
		&a.Confidence,
		&distribution,
		&a.FeatureCount,
		&a.ModelVersion,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(distribution), &a.Distribution); err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}
	return &a, nil
}
