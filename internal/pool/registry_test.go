package pool_test

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comeapi/loadbalancer/internal/pool"
)

func newRegistry(size, threshold int) *pool.Registry {
	backends := make([]*pool.Backend, 0, size)
	for i := 0; i < size; i++ {
		backends = append(backends, pool.New(mustParseURL(fmt.Sprintf("http://127.0.0.1:%d", 8070+i))))
	}
	return pool.NewRegistry(backends, threshold)
}

func markAllHealthy(r *pool.Registry) {
	for i := 0; i < r.Len(); i++ {
		r.Mark(i, true, time.Now())
	}
}

var _ = Describe("Registry", func() {
	var registry *pool.Registry

	BeforeEach(func() {
		registry = newRegistry(5, 1)
	})

	Describe("Select", func() {
		Context("with all backends healthy", func() {
			BeforeEach(func() {
				markAllHealthy(registry)
			})

			It("visits each backend exactly once per rotation, in registration order", func() {
				for _, want := range []int{0, 1, 2, 3, 4, 0} {
					idx, ok := registry.Select(nil)
					Expect(ok).To(BeTrue())
					Expect(idx).To(Equal(want))
				}
			})

			It("distributes selections evenly", func() {
				counts := make(map[int]int)
				for i := 0; i < 500; i++ {
					idx, ok := registry.Select(nil)
					Expect(ok).To(BeTrue())
					counts[idx]++
				}
				for i := 0; i < registry.Len(); i++ {
					Expect(counts[i]).To(Equal(100))
				}
			})

			It("skips excluded indices but keeps advancing the cursor", func() {
				idx, ok := registry.Select(map[int]bool{0: true, 1: true})
				Expect(ok).To(BeTrue())
				Expect(idx).To(Equal(2))

				idx, ok = registry.Select(nil)
				Expect(ok).To(BeTrue())
				Expect(idx).To(Equal(3))
			})

			It("reports none available when every index is excluded", func() {
				exclude := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true}
				_, ok := registry.Select(exclude)
				Expect(ok).To(BeFalse())
			})
		})

		Context("with unhealthy backends", func() {
			It("never returns a backend that failed its probe", func() {
				markAllHealthy(registry)
				registry.Mark(1, false, time.Now())

				for i := 0; i < 20; i++ {
					idx, ok := registry.Select(nil)
					Expect(ok).To(BeTrue())
					Expect(idx).NotTo(Equal(1))
				}
			})

			It("returns the backend again after a later probe succeeds", func() {
				markAllHealthy(registry)
				registry.Mark(1, false, time.Now())
				registry.Mark(1, true, time.Now())

				seen := make(map[int]bool)
				for i := 0; i < registry.Len(); i++ {
					idx, ok := registry.Select(nil)
					Expect(ok).To(BeTrue())
					seen[idx] = true
				}
				Expect(seen[1]).To(BeTrue())
			})

			It("reports none available when the whole pool is down", func() {
				_, ok := registry.Select(nil)
				Expect(ok).To(BeFalse())
			})
		})

		Context("with a single backend", func() {
			It("keeps returning index zero", func() {
				single := newRegistry(1, 1)
				single.Mark(0, true, time.Now())

				for i := 0; i < 3; i++ {
					idx, ok := single.Select(nil)
					Expect(ok).To(BeTrue())
					Expect(idx).To(Equal(0))
				}
			})
		})

		It("returns valid distinct-per-rotation indices under concurrent selection", func() {
			markAllHealthy(registry)

			var wg sync.WaitGroup
			results := make(chan int, 500)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 10; j++ {
						idx, ok := registry.Select(nil)
						Expect(ok).To(BeTrue())
						results <- idx
					}
				}()
			}
			wg.Wait()
			close(results)

			counts := make(map[int]int)
			for idx := range results {
				Expect(idx).To(BeNumerically(">=", 0))
				Expect(idx).To(BeNumerically("<", registry.Len()))
				counts[idx]++
			}
			for i := 0; i < registry.Len(); i++ {
				Expect(counts[i]).To(Equal(100))
			}
		})
	})

	Describe("Mark", func() {
		It("starts every backend unhealthy until its first successful probe", func() {
			for _, b := range registry.List() {
				Expect(b.IsHealthy()).To(BeFalse())
			}

			registry.Mark(0, true, time.Now())
			Expect(registry.Get(0).IsHealthy()).To(BeTrue())
			Expect(registry.Get(1).IsHealthy()).To(BeFalse())
		})

		It("marks unhealthy after a single failure with threshold 1", func() {
			registry.Mark(2, true, time.Now())
			changed := registry.Mark(2, false, time.Now())
			Expect(changed).To(BeTrue())
			Expect(registry.Get(2).IsHealthy()).To(BeFalse())
		})

		It("keeps counting failures on an already-unhealthy backend without flapping", func() {
			registry.Mark(2, true, time.Now())
			registry.Mark(2, false, time.Now())

			changed := registry.Mark(2, false, time.Now())
			Expect(changed).To(BeFalse())
			Expect(registry.Get(2).IsHealthy()).To(BeFalse())
			Expect(registry.Get(2).ConsecutiveFailures()).To(Equal(2))
		})

		It("resets the failure streak on success", func() {
			registry.Mark(3, false, time.Now())
			registry.Mark(3, false, time.Now())
			registry.Mark(3, true, time.Now())

			Expect(registry.Get(3).ConsecutiveFailures()).To(Equal(0))
			Expect(registry.Get(3).IsHealthy()).To(BeTrue())
		})

		It("records the marking timestamp", func() {
			now := time.Now()
			registry.Mark(0, true, now)
			Expect(registry.Get(0).LastCheckedAt()).To(BeTemporally("==", now))
		})

		It("ignores out-of-range indices", func() {
			Expect(registry.Mark(-1, true, time.Now())).To(BeFalse())
			Expect(registry.Mark(99, true, time.Now())).To(BeFalse())
		})

		Context("with a higher failure threshold", func() {
			It("tolerates failures below the threshold", func() {
				tolerant := newRegistry(2, 3)
				tolerant.Mark(0, true, time.Now())

				tolerant.Mark(0, false, time.Now())
				tolerant.Mark(0, false, time.Now())
				Expect(tolerant.Get(0).IsHealthy()).To(BeTrue())

				changed := tolerant.Mark(0, false, time.Now())
				Expect(changed).To(BeTrue())
				Expect(tolerant.Get(0).IsHealthy()).To(BeFalse())
			})
		})
	})

	Describe("List", func() {
		It("returns backends in registration order", func() {
			backends := registry.List()
			Expect(backends).To(HaveLen(5))
			for i, b := range backends {
				Expect(b.URL().Port()).To(Equal(fmt.Sprintf("%d", 8070+i)))
			}
		})
	})
})

var _ = Describe("Snapshot", func() {
	It("counts healthy backends and carries per-backend detail", func() {
		registry := newRegistry(3, 1)
		registry.Mark(0, true, time.Now())
		registry.Mark(2, true, time.Now())

		snap := registry.Snapshot()
		Expect(snap.TotalBackends).To(Equal(3))
		Expect(snap.HealthyBackends).To(Equal(2))
		Expect(snap.Backends).To(HaveLen(3))
		Expect(snap.Backends[0].Healthy).To(BeTrue())
		Expect(snap.Backends[1].Healthy).To(BeFalse())
		Expect(snap.Backends[1].LastCheckedAt).To(BeNil())
		Expect(snap.Backends[0].LastCheckedAt).NotTo(BeNil())
	})

	It("reflects live-failure markings immediately", func() {
		registry := newRegistry(2, 1)
		registry.Mark(0, true, time.Now())
		registry.Mark(1, true, time.Now())
		Expect(registry.Snapshot().HealthyBackends).To(Equal(2))

		registry.Mark(0, false, time.Now())
		Expect(registry.Snapshot().HealthyBackends).To(Equal(1))
	})

	It("exposes the EWMA response time in seconds", func() {
		registry := newRegistry(1, 1)
		registry.Get(0).RecordResponse(250 * time.Millisecond)

		snap := registry.Snapshot()
		Expect(snap.Backends[0].AvgResponseTime).To(BeNumerically("~", 0.25, 0.001))
	})
})

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}
