// Loadtest is a concurrent HTTP load testing tool for the balancer's
// /generate endpoint. It measures throughput, latency percentiles, and
// the status-code spread across the pool.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:9000/generate -concurrency 10 -requests 1000
//	go run ./scripts/loadtest -url http://localhost:9000/generate -requests 5000 -out summary.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	var (
		url         = flag.String("url", "http://localhost:9000/generate", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		body        = flag.String("body", `{"prompt":"hello","model_name":"tiny.gguf","max_tokens":16}`, "Request body")
		timeoutSec  = flag.Int("timeout", 130, "Per-request timeout in seconds")
		outJSON     = flag.String("out", "", "Write JSON summary to this file (optional)")
		verbose     = flag.Bool("v", false, "Verbose per-request logging to stdout")
	)
	flag.Parse()

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var total, success, failure int32

	var latencies []time.Duration
	var latMu sync.Mutex

	statusCodes := make(map[int]int32)
	var statusMu sync.Mutex

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				atomic.AddInt32(&total, 1)
				start := time.Now()

				req, err := http.NewRequest(http.MethodPost, *url, bytes.NewBufferString(*body))
				if err != nil {
					atomic.AddInt32(&failure, 1)
					continue
				}
				req.Header.Set("Content-Type", "application/json")

				// Spread fake source IPs so per-client rate limits
				// don't collapse the whole run onto one bucket.
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("192.168.1.%d", (idx%50)+1))

				resp, err := client.Do(req)
				dur := time.Since(start)

				latMu.Lock()
				latencies = append(latencies, dur)
				latMu.Unlock()

				if err != nil {
					atomic.AddInt32(&failure, 1)
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}

				statusMu.Lock()
				statusCodes[resp.StatusCode]++
				statusMu.Unlock()

				if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
					atomic.AddInt32(&success, 1)
				} else {
					atomic.AddInt32(&failure, 1)
				}

				if *verbose {
					fmt.Printf("[%d] idx=%d status=%d dur=%v\n", workerID, idx, resp.StatusCode, dur)
				}

				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)
	throughput := float64(total) / totalDuration.Seconds()

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *url)
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Total sent: %d  Success: %d  Failure: %d\n", total, success, failure)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", totalDuration, throughput)

	fmt.Println("\nStatus codes:")
	var scKeys []int
	for k := range statusCodes {
		scKeys = append(scKeys, k)
	}
	sort.Ints(scKeys)
	for _, k := range scKeys {
		fmt.Printf("  %d -> %d\n", k, statusCodes[k])
	}

	var p50, p90, p95, p99 time.Duration
	var minLat, avgLat, maxLat time.Duration
	if len(latencies) > 0 {
		sorted := make([]time.Duration, len(latencies))
		copy(sorted, latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		pick := func(pct float64) time.Duration {
			return sorted[int(float64(len(sorted)-1)*pct)]
		}
		p50, p90, p95, p99 = pick(0.50), pick(0.90), pick(0.95), pick(0.99)

		var sum time.Duration
		for _, d := range sorted {
			sum += d
		}
		minLat = sorted[0]
		maxLat = sorted[len(sorted)-1]
		avgLat = sum / time.Duration(len(sorted))

		fmt.Println("\nLatencies:")
		fmt.Printf("  samples=%d min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n",
			len(sorted), minLat, avgLat, maxLat, p50, p90, p95, p99)
	}

	if *outJSON != "" {
		report := map[string]any{
			"target":         *url,
			"requests":       *requests,
			"concurrency":    *concurrency,
			"total_sent":     total,
			"success":        success,
			"failure":        failure,
			"duration_ms":    totalDuration.Milliseconds(),
			"throughput_rps": throughput,
			"p50_ms":         float64(p50.Milliseconds()),
			"p90_ms":         float64(p90.Milliseconds()),
			"p95_ms":         float64(p95.Milliseconds()),
			"p99_ms":         float64(p99.Milliseconds()),
			"status_codes":   statusCodes,
		}

		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failure > 0 {
		os.Exit(2)
	}
}
