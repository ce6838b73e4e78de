// Package sink publishes scan opportunities to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/paralela17-sudo/tradepulse-bot/internal/scanner"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig locates the brokers and topic.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Threshold    int
	WriteTimeout time.Duration
}

// Message is the JSON payload of one published opportunity.
type Message struct {
	ScanID      string    `json:"scan_id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Signal      string    `json:"signal"`
	Probability int       `json:"probability"`
	Tier        string    `json:"tier"`
	Rationale   string    `json:"rationale"`
	Source      string    `json:"source"`
	ScannedAt   time.Time `json:"scanned_at"`
}

// Kafka publishes every ranked result at or above the threshold, keyed by symbol.
type Kafka struct {
	writer    Writer
	threshold int
	timeout   time.Duration
	log       zerolog.Logger
}

var _ scanner.Sink = (*Kafka)(nil)

// NewKafkaWriter builds a least-bytes balanced writer for cfg.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafka(w Writer, cfg KafkaConfig, log zerolog.Logger) *Kafka {
	if cfg.Threshold <= 0 {
		cfg.Threshold = scanner.DefaultDisplayThreshold
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Kafka{
		writer:    w,
		threshold: cfg.Threshold,
		timeout:   cfg.WriteTimeout,
		log:       log.With().Str("component", "kafka_sink").Str("topic", cfg.Topic).Logger(),
	}
}

func (k *Kafka) Publish(ctx context.Context, r scanner.Report) error {
	msgs := make([]kafka.Message, 0, len(r.Ranked))
	for _, res := range r.Ranked {
		if res.Prediction.Probability < k.threshold {
			continue
		}
		payload, err := json.Marshal(Message{
			ScanID:      r.ID.String(),
			Symbol:      res.Asset.Symbol,
			Name:        res.Asset.Name,
			Price:       res.Price,
			Signal:      string(res.Prediction.Signal),
			Probability: res.Prediction.Probability,
			Tier:        string(scanner.TierOf(res.Prediction.Probability)),
			Rationale:   res.Prediction.Rationale,
			Source:      res.Source,
			ScannedAt:   r.StartedAt,
		})
		if err != nil {
			return fmt.Errorf("encode opportunity %s: %w", res.Asset.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(strings.ToUpper(res.Asset.Symbol)),
			Value:   payload,
			Time:    r.StartedAt,
			Headers: []kafka.Header{{Key: "scan_id", Value: []byte(r.ID.String())}},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d opportunities: %w", len(msgs), err)
	}
	k.log.Debug().Int("messages", len(msgs)).Str("scan_id", r.ID.String()).Msg("opportunities published")
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }
