package messaging

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

const (
	pollTimeoutMs   = 100
	eventBufferSize = 64
)

// PushStream delivers notification events from a Kafka topic. Every
// subscription joins its own consumer group so that independent engine
// instances each see the full stream.
type PushStream struct {
	bootstrapServers string
	groupPrefix      string
	topic            string
}

func NewPushStream(bootstrapServers, groupPrefix, topic string) *PushStream {
	return &PushStream{
		bootstrapServers: bootstrapServers,
		groupPrefix:      groupPrefix,
		topic:            topic,
	}
}

func (ps *PushStream) Subscribe(ctx context.Context) (notification.Subscription, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  ps.bootstrapServers,
		"group.id":           fmt.Sprintf("%s-%s", ps.groupPrefix, uuid.New().String()),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": "true"})
	if err != nil {
		return nil, err
	}
	if err = consumer.Subscribe(ps.topic, nil); err != nil {
		if errClose := consumer.Close(); errClose != nil {
			log.Err(errClose).Msg("could not close consumer after failed subscribe")
		}
		return nil, err
	}
	sub := &subscription{
		consumer: consumer,
		events:   make(chan notification.Event, eventBufferSize),
		done:     make(chan struct{}),
		stopped:  atomic.NewBool(false),
		closed:   atomic.NewBool(false),
	}
	go sub.consume(ctx)
	return sub, nil
}

type subscription struct {
	consumer *kafka.Consumer
	events   chan notification.Event
	done     chan struct{}
	stopped  *atomic.Bool
	closed   *atomic.Bool
}

func (s *subscription) Events() <-chan notification.Event {
	return s.events
}

func (s *subscription) Close() error {
	if !s.closed.CAS(false, true) {
		return nil
	}
	s.stopped.Store(true)
	<-s.done
	return s.consumer.Close()
}

func (s *subscription) consume(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	for s.stopped.Load() == false {
		ev := s.consumer.Poll(pollTimeoutMs)
		switch e := ev.(type) {
		case *kafka.Message:
			event, err := notification.DecodeEvent(e.Value)
			if err != nil {
				log.Err(err).Int64("offset", int64(e.TopicPartition.Offset)).Msg("cannot decode push event")
				continue
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				return
			}
		case kafka.Error:
			if e.IsFatal() {
				log.Err(e).Msg("kafka push consumer failed")
				return
			}
			log.Warn().Err(e).Msg("kafka produced an error in push consumer")
		default:
		}
		if ctx.Err() != nil {
			return
		}
	}
}
