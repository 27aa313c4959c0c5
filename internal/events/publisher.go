// Package events emits screening results to Kafka for downstream consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
)

// Publisher notifies downstream consumers about completed screenings.
type Publisher interface {
	AnalysisCompleted(a *domain.Analysis, lowConfidence bool) error
	Close() error
}

type AnalysisCompletedEvent struct {
	AnalysisID    string    `json:"analysis_id"`
	ImageSHA256   string    `json:"image_sha256"`
	Stage         int       `json:"stage"`
	Risk          string    `json:"risk"`
	Confidence    float64   `json:"confidence"`
	LowConfidence bool      `json:"low_confidence"`
	ModelVersion  string    `json:"model_version"`
	CreatedAt     time.Time `json:"created_at"`
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func connectProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 2

	return sarama.NewSyncProducer(brokers, config)
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) (Publisher, error) {
	producer, err := connectProducer(brokers)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}

	log.Info("Kafka publisher ready", zap.Strings("brokers", brokers), zap.String("topic", topic))

	return &kafkaPublisher{producer: producer, topic: topic, log: log}, nil
}

func (p *kafkaPublisher) AnalysisCompleted(a *domain.Analysis, lowConfidence bool) error {
	event := AnalysisCompletedEvent{
		AnalysisID:    a.ID,
		ImageSHA256:   a.ImageSHA256,
		Stage:         a.Stage,
		Confidence:    a.Confidence,
		LowConfidence: lowConfidence,
		ModelVersion:  a.ModelVersion,
		CreatedAt:     a.CreatedAt,
	}
	if info, ok := domain.StageByNumber(a.Stage); ok {
		event.Risk = info.Risk
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(a.ID),
		Value: sarama.StringEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}

	p.log.Debug("Published analysis event",
		zap.String("analysis_id", a.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}
