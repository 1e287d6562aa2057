package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comeapi/loadbalancer/config"
	"github.com/comeapi/loadbalancer/internal/handler"
	"github.com/comeapi/loadbalancer/internal/metrics"
)

func TestCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Main Suite")
}

var _ = Describe("buildRegistry", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = &config.Config{
			BackendPool: config.BackendPoolConfig{
				Host:     "127.0.0.1",
				BasePort: 8070,
				Count:    3,
			},
			HealthCheck: config.HealthCheckConfig{
				FailureThreshold: 1,
			},
		}
	})

	It("registers one backend per pool slot", func() {
		registry, err := buildRegistry(cfg, discardLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(registry.Len()).To(Equal(3))
	})

	It("keeps backends in port order", func() {
		registry, err := buildRegistry(cfg, discardLogger())
		Expect(err).NotTo(HaveOccurred())

		backends := registry.List()
		Expect(backends[0].URL().String()).To(Equal("http://127.0.0.1:8070"))
		Expect(backends[1].URL().String()).To(Equal("http://127.0.0.1:8071"))
		Expect(backends[2].URL().String()).To(Equal("http://127.0.0.1:8072"))
	})

	It("fails when the pool is empty", func() {
		cfg.BackendPool.Count = 0
		_, err := buildRegistry(cfg, discardLogger())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("setupRouter", func() {
	It("answers CORS preflights on every route", func() {
		cfg := &config.Config{
			BackendPool: config.BackendPoolConfig{Host: "127.0.0.1", BasePort: 8070, Count: 2},
			HealthCheck: config.HealthCheckConfig{FailureThreshold: 1},
		}
		registry, err := buildRegistry(cfg, discardLogger())
		Expect(err).NotTo(HaveOccurred())

		collector := metrics.NewCollector(1, discardLogger())
		router := setupRouter(handler.New(discardLogger(), nil, registry), collector, nil, discardLogger())

		for _, path := range []string{"/", "/status", "/models", "/generate", "/v1/completions", "/metrics"} {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", "http://example.com")
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNoContent), path)
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"), path)
		}
	})
})

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
