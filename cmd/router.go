package main

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/comeapi/loadbalancer/internal/handler"
	"github.com/comeapi/loadbalancer/internal/metrics"
	"github.com/comeapi/loadbalancer/internal/ratelimit"
)

func setupRouter(balancerHandler *handler.Handler, collector *metrics.Collector, limiter *ratelimit.Limiter, log *slog.Logger) http.Handler {
	router := mux.NewRouter()

	// OPTIONS is registered everywhere because mux answers unmatched
	// methods with 405 before middleware runs, which would starve CORS
	// preflights of their headers.
	router.HandleFunc("/", balancerHandler.Root).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/status", balancerHandler.Status).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/models", balancerHandler.Models).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/generate", balancerHandler.Generate).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/completions", balancerHandler.Completions).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/metrics", collector.Handler()).Methods(http.MethodGet, http.MethodOptions)

	router.Use(handler.CORS)
	router.Use(mux.MiddlewareFunc(handler.RequestLogging(log)))
	if limiter != nil {
		router.Use(mux.MiddlewareFunc(ratelimit.Middleware(limiter, log)))
	}

	return router
}
