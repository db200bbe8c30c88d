package messaging

import (
	"strconv"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog/log"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

const flushTimeoutMs = 15_000

type KafkaProducer struct {
	producer *kafka.Producer
	topic    string
	receiver chan kafka.Event
}

func NewKafkaProducer(bootstrapServers, topic,
	clientID, acks string) (*KafkaProducer, error) {
	receiver := make(chan kafka.Event, 1000)
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"client.id":         clientID,
		"acks":              acks,
	})
	if err != nil {
		return nil, err
	}

	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
		receiver: receiver,
	}
	kp.deliveredAsync()
	return kp, nil
}

// PublishEvent keys every event by notification id, so all events of one
// notification land on the same partition in order.
func (kp *KafkaProducer) PublishEvent(e notification.Event) error {
	payload, err := notification.EncodeEvent(e)
	if err != nil {
		return err
	}
	return kp.Produce([]byte(strconv.FormatInt(e.ID, 10)), payload)
}

func (kp *KafkaProducer) Produce(key, payload []byte) error {
	return kp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &kp.topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          payload,
	},
		kp.receiver,
	)
}

// Close waits for outstanding deliveries and releases the producer.
func (kp *KafkaProducer) Close() {
	if remaining := kp.producer.Flush(flushTimeoutMs); remaining > 0 {
		log.Warn().Int("remaining", remaining).Msg("producer closed with undelivered messages")
	}
	kp.producer.Close()
	close(kp.receiver)
}

func (kp *KafkaProducer) deliveredAsync() {
	go func() {
		for e := range kp.receiver {
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				log.Err(m.TopicPartition.Error).Msg("delivery failed")
			} else {
				log.Debug().
					Str("topic", *m.TopicPartition.Topic).
					Int32("partition", m.TopicPartition.Partition).
					Str("offset", m.TopicPartition.Offset.String()).
					Msg("delivered push event")
			}
		}
	}()
}
