package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/jalsense/jalsense/pkg/types"
	"github.com/jalsense/jalsense/server/internal/config"
	"github.com/jalsense/jalsense/server/internal/metrics"
	"github.com/jalsense/jalsense/server/internal/store"
)

// Dead-letter header keys.
const (
	HeaderDeadLetterReason = "x-dead-letter-reason"
	HeaderSourceTopic      = "x-source-topic"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer used for dead-lettering.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds Kafka telemetry messages into the ingest coordinator.
type Consumer struct {
	reader  MessageReader
	dlq     MessageWriter // nil disables dead-lettering
	ingest  Ingester
	metrics *metrics.Metrics
}

// NewConsumer wires a consumer from explicit reader and writer. dlq and m may be nil.
func NewConsumer(r MessageReader, dlq MessageWriter, ing Ingester, m *metrics.Metrics) *Consumer {
	return &Consumer{reader: r, dlq: dlq, ingest: ing, metrics: m}
}

// NewKafkaConsumer builds a consumer-group reader, plus a dead-letter writer
// when cfg.DeadLetterTopic is set.
func NewKafkaConsumer(cfg config.KafkaConfig, ing Ingester, m *metrics.Metrics) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	var dlq MessageWriter
	if cfg.DeadLetterTopic != "" {
		dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DeadLetterTopic,
			Balancer:     &kafka.Hash{}, // keep a node's rejects on one partition
			RequiredAcks: kafka.RequireOne,
		}
	}
	return NewConsumer(r, dlq, ing, m)
}

// Run consumes until ctx is cancelled or the reader fails. Every fetched
// message is committed once handled, whether it was accepted or rejected.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: fetch: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("receiver: kafka commit failed",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"err", err,
			)
		}
	}
}

// Close closes the reader and the dead-letter writer.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.dlq != nil {
		err = errors.Join(err, c.dlq.Close())
	}
	return err
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var t types.Telemetry
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		c.metrics.ObserveIngest("kafka", "rejected")
		c.deadLetter(ctx, msg, "decode: "+err.Error())
		return
	}
	if t.NodeID == "" {
		c.metrics.ObserveIngest("kafka", "rejected")
		c.deadLetter(ctx, msg, "nodeId is required")
		return
	}
	if nulls := t.NullMetrics(); len(nulls) > 0 {
		c.metrics.ObserveIngest("kafka", "rejected")
		c.deadLetter(ctx, msg, "null metric value: "+strings.Join(nulls, ", "))
		return
	}

	_, err := c.ingest.Ingest(t.NodeID, t.Metrics, t.Timestamp)
	switch {
	case errors.Is(err, store.ErrUnknownNode):
		c.metrics.ObserveIngest("kafka", "unknown_node")
		c.deadLetter(ctx, msg, "unknown node "+t.NodeID)
	case err != nil:
		c.metrics.ObserveIngest("kafka", "error")
		slog.Error("receiver: kafka ingest failed", "node", t.NodeID, "err", err)
	default:
		c.metrics.ObserveIngest("kafka", "ok")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, reason string) {
	slog.Warn("receiver: rejecting kafka message",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"reason", reason,
	)
	if c.metrics != nil {
		c.metrics.KafkaDeadLetters.Inc()
	}
	if c.dlq == nil {
		return
	}

	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDeadLetterReason, Value: []byte(reason)},
		kafka.Header{Key: HeaderSourceTopic, Value: []byte(msg.Topic)},
	)
	// Topic stays empty: the writer owns the destination topic.
	out := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
	if err := c.dlq.WriteMessages(ctx, out); err != nil {
		slog.Error("receiver: dead-letter write failed", "offset", msg.Offset, "err", err)
	}
}
