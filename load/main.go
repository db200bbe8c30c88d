package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/scraping050/proyecto-garantias-sub001/internal/messaging"
	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

// load publishes synthetic push events so a running sync daemon can be
// watched reconciling them against its polls.

const (
	numberOfNotifications   = 5_000
	numberOfPushingRoutines = 50
)

type Config struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"localhost:9092"`
	PushTopic        string `env:"PUSH_TOPIC" envDefault:"notification-events"`
	FirstID          int64  `env:"FIRST_ID" envDefault:"1000000"`
}

var (
	kinds = []notification.Kind{
		notification.KindTenderUpdate, notification.KindGuarantee, notification.KindAward,
		notification.KindConsortium, notification.KindReport, notification.KindSystem,
	}
	priorities = []notification.Priority{
		notification.PriorityHigh, notification.PriorityMedium, notification.PriorityLow,
	}
)

func main() {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}
	producer, err := messaging.NewKafkaProducer(cfg.BootstrapServers, cfg.PushTopic, "notifications-load", "1")
	if err != nil {
		log.Panic().Err(err).Msg("cannot create kafka producer")
	}
	defer producer.Close()

	maxParallelism := make(chan struct{}, numberOfPushingRoutines)
	wg := sync.WaitGroup{}

	t := time.Now()
	for i := 0; i < numberOfNotifications; i++ {
		maxParallelism <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer func() {
				<-maxParallelism
				wg.Done()
			}()
			sendEvents(producer, cfg.FirstID+int64(idx))
		}(i)
	}
	wg.Wait()
	log.Info().Dur("took", time.Since(t)).Int("notifications", numberOfNotifications).Msg("push events published")
}

// sendEvents creates one notification and, for some of them, follows up
// with an update or a delete.
func sendEvents(producer *messaging.KafkaProducer, id int64) {
	rec := notification.Record{
		ID:        id,
		Kind:      kinds[rand.Intn(len(kinds))],
		Title:     fmt.Sprintf("load-%d", id),
		Message:   uuid.New().String(),
		Priority:  priorities[rand.Intn(len(priorities))],
		CreatedAt: time.Now().UTC(),
		Revision:  1,
	}
	publish(producer, notification.Event{Kind: notification.EventCreated, Record: rec, ID: id})

	switch rand.Intn(4) {
	case 0:
		rec.Revision++
		rec.Message = uuid.New().String()
		publish(producer, notification.Event{Kind: notification.EventUpdated, Record: rec, ID: id})
	case 1:
		publish(producer, notification.Event{Kind: notification.EventDeleted, ID: id})
	}
}

func publish(producer *messaging.KafkaProducer, e notification.Event) {
	if err := producer.PublishEvent(e); err != nil {
		log.Err(err).Int64("id", e.ID).Str("event", e.Kind.String()).Msg("could not publish push event")
	}
}
