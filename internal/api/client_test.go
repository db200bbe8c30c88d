package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scraping050/proyecto-garantias-sub001/internal/api"
	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

var _ = Describe("Client", func() {

	var (
		server  *httptest.Server
		client  *api.Client
		status  int
		payload string
		last    *http.Request
		ctx     context.Context
	)

	BeforeEach(func() {
		status = http.StatusOK
		payload = ""
		last = nil
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			last = r
			w.WriteHeader(status)
			_, _ = w.Write([]byte(payload))
		}))
		client = api.NewClient(server.URL+"/", "secret", api.WithTimeout(time.Second))
	})

	AfterEach(func() {
		server.Close()
	})

	Context("Listing", func() {
		It("should decode a stamped snapshot", func() {
			payload = `{"items":[{"id":1,"kind":"award","title":"Buena pro","priority":"high","isRead":false,"createdAt":"2024-03-01T12:00:00Z","revision":3}],"asOf":"2024-03-01T12:05:00Z"}`

			snap, err := client.List(ctx)
			Expect(err).To(BeNil())
			Expect(snap.Records).To(HaveLen(1))
			Expect(snap.Records[0].Kind).To(Equal(notification.KindAward))
			Expect(snap.Records[0].Revision).To(Equal(int64(3)))
			Expect(snap.AsOf).To(Equal(time.Date(2024, time.March, 1, 12, 5, 0, 0, time.UTC)))

			Expect(last.Method).To(Equal(http.MethodGet))
			Expect(last.URL.Path).To(Equal("/notifications"))
			Expect(last.Header.Get("Authorization")).To(Equal("Bearer secret"))
			Expect(last.Header.Get("Idempotency-Key")).To(BeEmpty())
		})

		It("should accept a bare array", func() {
			payload = `[{"id":1},{"id":2}]`

			snap, err := client.List(ctx)
			Expect(err).To(BeNil())
			Expect(snap.Records).To(HaveLen(2))
			Expect(snap.AsOf).To(BeZero())
		})

		It("should fail on a body it cannot read", func() {
			payload = `<html>`
			_, err := client.List(ctx)
			Expect(err).NotTo(BeNil())
		})
	})

	Context("Status mapping", func() {
		It("should map 401 and 403 to auth errors", func() {
			for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
				status = code
				_, err := client.List(ctx)
				Expect(notification.IsAuthError(err)).To(BeTrue())
			}
		})

		It("should map 404 to not found with the id", func() {
			status = http.StatusNotFound
			err := client.Delete(ctx, 7)
			var nfErr *notification.NotFoundError
			Expect(errors.As(err, &nfErr)).To(BeTrue())
			Expect(nfErr.ID).To(Equal(int64(7)))
		})

		It("should map other failures to server errors", func() {
			status = http.StatusServiceUnavailable
			err := client.MarkAllRead(ctx)
			var srvErr *notification.ServerError
			Expect(errors.As(err, &srvErr)).To(BeTrue())
			Expect(srvErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(notification.IsTransient(err)).To(BeTrue())
		})

		It("should map an unreachable server to a network error", func() {
			server.Close()
			_, err := client.List(ctx)
			var netErr *notification.NetworkError
			Expect(errors.As(err, &netErr)).To(BeTrue())
		})
	})

	Context("Mutations", func() {
		It("should send an idempotency key", func() {
			status = http.StatusNoContent
			Expect(client.MarkAllRead(ctx)).To(Succeed())
			Expect(last.Method).To(Equal(http.MethodPut))
			Expect(last.URL.Path).To(Equal("/notifications/read-all"))
			Expect(last.Header.Get("Idempotency-Key")).NotTo(BeEmpty())
		})

		It("should return the updated record when the server sends it", func() {
			payload = `{"id":5,"isRead":true,"revision":4}`

			r, err := client.MarkRead(ctx, 5)
			Expect(err).To(BeNil())
			Expect(r).NotTo(BeNil())
			Expect(r.IsRead).To(BeTrue())
			Expect(last.URL.Path).To(Equal("/notifications/5/read"))
		})

		It("should return no record for an empty or unrelated body", func() {
			status = http.StatusNoContent
			r, err := client.MarkRead(ctx, 5)
			Expect(err).To(BeNil())
			Expect(r).To(BeNil())

			status, payload = http.StatusOK, `{"ok":true}`
			r, err = client.MarkRead(ctx, 5)
			Expect(err).To(BeNil())
			Expect(r).To(BeNil())
		})

		It("should delete by id", func() {
			status = http.StatusNoContent
			Expect(client.Delete(ctx, 9)).To(Succeed())
			Expect(last.Method).To(Equal(http.MethodDelete))
			Expect(last.URL.Path).To(Equal("/notifications/9"))
		})
	})
})
