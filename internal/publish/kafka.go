// internal/publish/kafka.go
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/config"
	"github.com/tamzrod/mk3-bridge/internal/poller"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka appends one Record per poll cycle, keyed by device id.
type Kafka struct {
	w   messageWriter
	log logrus.FieldLogger
}

// NewKafkaWriter builds a synchronous writer; records of one device stay ordered.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

func NewKafka(w messageWriter, log logrus.FieldLogger) *Kafka {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Kafka{w: w, log: log.WithField("sink", "kafka")}
}

func (k *Kafka) Publish(ctx context.Context, res poller.PollResult) error {
	value, err := json.Marshal(recordOf(res))
	if err != nil {
		return fmt.Errorf("kafka: marshal record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(res.UnitID),
		Value: value,
		Time:  res.At,
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
