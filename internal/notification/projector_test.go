package notification_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

var _ = Describe("Projector", func() {

	var records []notification.Record

	BeforeEach(func() {
		award := rec(4, false, at(4))
		award.Kind = notification.KindAward
		award.Priority = notification.PriorityHigh
		guarantee := rec(3, true, at(3))
		guarantee.Kind = notification.KindGuarantee
		guarantee.Priority = notification.PriorityHigh
		records = []notification.Record{award, guarantee, rec(2, false, at(2)), rec(1, true, at(1))}
	})

	It("should return everything in order for an empty filter", func() {
		Expect(ids(notification.Project(records, notification.Filter{}))).To(Equal([]int64{4, 3, 2, 1}))
	})

	It("should combine filters", func() {
		f := notification.Filter{Priority: notification.PriorityHigh, UnreadOnly: true}
		Expect(ids(notification.Project(records, f))).To(Equal([]int64{4}))

		f = notification.Filter{Kind: notification.KindTenderUpdate}
		Expect(ids(notification.Project(records, f))).To(Equal([]int64{2, 1}))
	})

	It("should cut at the limit", func() {
		Expect(ids(notification.Project(records, notification.Filter{UnreadOnly: true, Limit: 1}))).To(Equal([]int64{4}))
	})

	It("should leave its input untouched", func() {
		before := append([]notification.Record(nil), records...)
		out := notification.Project(records, notification.Filter{UnreadOnly: true})
		out[0].Title = "changed"
		Expect(records).To(Equal(before))
	})

	It("should summarize by kind and priority", func() {
		s := notification.Summarize(records)
		Expect(s.Total).To(Equal(4))
		Expect(s.Unread).To(Equal(2))
		Expect(s.ByKind).To(Equal(map[notification.Kind]int{
			notification.KindAward:        1,
			notification.KindGuarantee:    1,
			notification.KindTenderUpdate: 2,
		}))
		Expect(s.ByPriority[notification.PriorityHigh]).To(Equal(2))
		Expect(s.ByPriority[notification.PriorityMedium]).To(Equal(2))
	})

	It("should summarize nothing as zeros", func() {
		s := notification.Summarize(nil)
		Expect(s.Total).To(BeZero())
		Expect(s.ByKind).To(BeEmpty())
	})
})
