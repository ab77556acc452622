package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// KafkaPublisher forwards completed payments to the notification pipeline.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher dials the brokers, retrying while Kafka starts up.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	var producer sarama.SyncProducer
	var err error

	for i := 1; i <= 5; i++ {
		producer, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			log.WithField("topic", topic).Info("Kafka producer initialized")
			return NewKafkaPublisherWithProducer(producer, topic), nil
		}

		log.Warnf("Waiting for Kafka... (%d/5) Error: %v", i, err)
		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("start kafka producer: %w", err)
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends payment.completed events keyed by payment id; other events are skipped.
func (p *KafkaPublisher) Publish(_ context.Context, event PaymentEvent) error {
	if event.Type != EventPaymentCompleted {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.PaymentID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s message: %w", event.Type, err)
	}

	log.WithFields(log.Fields{
		"topic":      p.topic,
		"payment_id": event.PaymentID,
		"partition":  partition,
		"offset":     offset,
	}).Info("Published payment event")
	return nil
}

// Close flushes and closes the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
