package fanout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher exports lifecycle events for downstream consumers such as
// reporting. Messages are keyed by scope so one site stays on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Printf("kafka export failed messages=%d err=%v", len(messages), err)
				}
			},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, message(env, data))
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func message(env Envelope, data []byte) kafka.Message {
	return kafka.Message{
		Key:     []byte(env.Scope),
		Value:   data,
		Headers: []kafka.Header{{Key: "event", Value: []byte(env.Event)}},
		Time:    env.PublishedAt,
	}
}
