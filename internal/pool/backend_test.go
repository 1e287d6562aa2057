package pool_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comeapi/loadbalancer/internal/pool"
)

var _ = Describe("Backend", func() {
	var b *pool.Backend

	BeforeEach(func() {
		b = pool.New(mustParseURL("http://127.0.0.1:8070"))
	})

	Describe("New", func() {
		It("keeps the URL it was created with", func() {
			Expect(b.URL().String()).To(Equal("http://127.0.0.1:8070"))
		})

		It("starts unhealthy", func() {
			Expect(b.IsHealthy()).To(BeFalse())
		})

		It("starts with no in-flight requests", func() {
			Expect(b.InFlight()).To(Equal(0))
		})

		It("starts with a zero last-checked timestamp", func() {
			Expect(b.LastCheckedAt().IsZero()).To(BeTrue())
		})
	})

	Describe("In-flight tracking", func() {
		It("increments and decrements", func() {
			b.IncrementInFlight()
			b.IncrementInFlight()
			Expect(b.InFlight()).To(Equal(2))

			b.DecrementInFlight()
			Expect(b.InFlight()).To(Equal(1))
		})

		It("never goes negative", func() {
			b.DecrementInFlight()
			Expect(b.InFlight()).To(Equal(0))
		})

		It("is safe under concurrent access", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b.IncrementInFlight()
					b.DecrementInFlight()
				}()
			}
			wg.Wait()
			Expect(b.InFlight()).To(Equal(0))
		})
	})

	Describe("Response time tracking", func() {
		It("returns zero before any response is recorded", func() {
			Expect(b.EWMATime()).To(Equal(time.Duration(0)))
		})

		It("uses the first sample as the initial average", func() {
			b.RecordResponse(100 * time.Millisecond)
			Expect(b.EWMATime()).To(Equal(100 * time.Millisecond))
		})

		It("weights newer samples into the average", func() {
			b.RecordResponse(100 * time.Millisecond)
			b.RecordResponse(200 * time.Millisecond)

			ewma := b.EWMATime()
			Expect(ewma).To(BeNumerically(">", 100*time.Millisecond))
			Expect(ewma).To(BeNumerically("<", 200*time.Millisecond))
		})
	})
})
