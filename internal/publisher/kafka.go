package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

const kafkaDeliveryTimeout = 10 * time.Second

type Kafka struct {
	producer *kafka.Producer
	topic    string
	log      logrus.FieldLogger
}

func NewKafka(bootstrapServers, topic string, log logrus.FieldLogger) (*Kafka, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("topic", topic).Info("access event kafka producer created")

	return &Kafka{producer: p, topic: topic, log: log}, nil
}

func (p *Kafka) Name() string { return "kafka" }

// Publish produces one message keyed by device serial so events from a
// reader stay ordered within a partition.
func (p *Kafka) Publish(ctx context.Context, ev types.AccessEvent) error {
	msg, err := kafkaMessage(p.topic, ev)
	if err != nil {
		return err
	}

	// Buffered so a late delivery report after a timeout does not block librdkafka.
	deliveryChan := make(chan kafka.Event, 1)
	if err := p.producer.Produce(msg, deliveryChan); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected event type: %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-time.After(kafkaDeliveryTimeout):
		return fmt.Errorf("delivery timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Kafka) Close() {
	p.log.Info("closing access event kafka producer")
	p.producer.Flush(15 * 1000)
	p.producer.Close()
}

func kafkaMessage(topic string, ev types.AccessEvent) (*kafka.Message, error) {
	payload, err := encode(ev)
	if err != nil {
		return nil, err
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.DeviceSerial),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "decision", Value: []byte(ev.Decision)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	}, nil
}
