package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type KafkaOutput struct {
	producer sarama.SyncProducer
}

// NewSaramaConfig is the producer configuration used for every broker.
func NewSaramaConfig(cfg models.KafkaConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // required by SyncProducer
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1 // required by Idempotent

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 30 * time.Second
	}
	saramaConfig.Net.DialTimeout = dial
	saramaConfig.Net.ReadTimeout = dial
	saramaConfig.Net.WriteTimeout = dial

	if cfg.SessionTimeoutMs > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(cfg.SessionTimeoutMs) * time.Millisecond
	} else {
		saramaConfig.Consumer.Group.Session.Timeout = 45 * time.Second
	}
	return saramaConfig
}

func NewKafkaOutput(cfg models.KafkaConfig) (*KafkaOutput, error) {
	brokerList := strings.Split(cfg.BrokerList, ",")
	producer, err := sarama.NewSyncProducer(brokerList, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}
	logrus.WithField("brokers", brokerList).Info("kafka producer created")
	return NewKafkaOutputWithProducer(producer), nil
}

func NewKafkaOutputWithProducer(producer sarama.SyncProducer) *KafkaOutput {
	return &KafkaOutput{producer: producer}
}

// WriteMessage publishes msg keyed by its idempotency key, or by the original
// item for decisions, so that retries of one write land on one partition.
func (k *KafkaOutput) WriteMessage(topic string, msg []byte) error {
	if k.producer == nil {
		return fmt.Errorf("kafka producer is closed")
	}
	pm := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(msg),
	}
	if key := messageKey(msg); key != "" {
		pm.Key = sarama.StringEncoder(key)
	}
	if _, _, err := k.producer.SendMessage(pm); err != nil {
		return fmt.Errorf("send to topic %s: %w", topic, err)
	}
	return nil
}

func (k *KafkaOutput) Close() error {
	if k.producer == nil {
		return nil
	}
	err := k.producer.Close()
	k.producer = nil
	return err
}

func messageKey(msg []byte) string {
	var keys struct {
		IdempotencyKey string `json:"idempotency_key"`
		OriginalItemID string `json:"original_item_id"`
		OrderID        string `json:"order_id"`
	}
	if err := json.Unmarshal(msg, &keys); err != nil {
		return ""
	}
	switch {
	case keys.IdempotencyKey != "":
		return keys.IdempotencyKey
	case keys.OrderID != "" && keys.OriginalItemID != "":
		return keys.OrderID + ":" + keys.OriginalItemID
	default:
		return keys.OriginalItemID
	}
}
