package notifications_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

// These specs expect a running sync daemon at NODE_HOST wired to the same
// Kafka topic and cache database.
var _ = Describe("Push events reach a running daemon", func() {

	var rec notification.Record

	BeforeEach(func() {
		id := rand.Int63n(1_000_000_000) + 1_000_000_000
		rec = notification.Record{
			ID:        id,
			Kind:      notification.KindReport,
			Title:     fmt.Sprintf("TEST-%d", id),
			Message:   uuid.New().String(),
			Priority:  notification.PriorityLow,
			CreatedAt: time.Now().UTC(),
			Revision:  1,
		}
	})

	JustBeforeEach(func() {
		Expect(producer.PublishEvent(notification.Event{Kind: notification.EventCreated, Record: rec, ID: rec.ID})).To(Succeed())
	})

	Context("Create a notification", func() {
		It("should be listed and cached", func() {
			Eventually(func() bool { return listed(rec.ID) }).Should(BeTrue())
			Eventually(func() bool { return cached(rec.ID) }).Should(BeTrue())
		})

		Context("Then delete it", func() {
			JustBeforeEach(func() {
				Eventually(func() bool { return listed(rec.ID) }).Should(BeTrue())
				Expect(producer.PublishEvent(notification.Event{Kind: notification.EventDeleted, ID: rec.ID})).To(Succeed())
			})

			It("should disappear from the list", func() {
				Eventually(func() bool { return listed(rec.ID) }).Should(BeFalse())
			})
		})
	})

	Context("Daemon status", func() {
		It("should report a running engine with push enabled", func() {
			resp, err := http.Get(cfg.NodeHost + "/status")
			Expect(err).To(BeNil())
			defer resp.Body.Close()
			var st notification.Status
			Expect(json.NewDecoder(resp.Body).Decode(&st)).To(Succeed())
			Expect(st.Running).To(BeTrue())
			Expect(st.PushEnabled).To(BeTrue())
		})
	})
})

func listed(id int64) bool {
	resp, err := http.Get(cfg.NodeHost + "/notifications")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	var body struct {
		Items []notification.Record `json:"items"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	for _, r := range body.Items {
		if r.ID == id {
			return true
		}
	}
	return false
}

func cached(id int64) bool {
	err := crdbpgx.ExecuteTx(context.Background(), connPool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, errGet := store.Get(context.Background(), id, tx)
		return errGet
	})
	return err == nil
}
