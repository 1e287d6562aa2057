// Backend is a fake inference server used for load balancer testing.
// It mimics the real backend surface: a root liveness endpoint, /models
// listing the *.gguf files in a directory, and /generate returning a
// canned completion after an optional artificial delay.
//
// Usage:
//
//	go run ./scripts/backend -port 8070 -models ./models
//	go run ./scripts/backend -port 8071 -models ./models -delay 500ms
//
// Run several instances on sequential ports to exercise the rotation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type generationRequest struct {
	Prompt    string `json:"prompt"`
	ModelName string `json:"model_name"`
	MaxTokens int    `json:"max_tokens"`
}

type modelInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

func main() {
	port := flag.Int("port", 8070, "port to listen on")
	modelsDir := flag.String("models", "./models", "directory scanned for *.gguf files")
	delay := flag.Duration("delay", 0, "artificial generation latency")
	failAfter := flag.Int("fail-after", 0, "return 500 after this many /generate calls (0 = never)")
	flag.Parse()

	var generateCalls int

	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("backend on port %d is running", *port),
		})
	})

	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		paths, err := filepath.Glob(filepath.Join(*modelsDir, "*.gguf"))
		if err != nil {
			http.Error(w, "failed to scan models", http.StatusInternalServerError)
			return
		}

		models := make([]modelInfo, 0, len(paths))
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			sizeMB := float64(info.Size()) / (1024 * 1024)
			models = append(models, modelInfo{
				Name:   filepath.Base(p),
				Path:   p,
				SizeMB: math.Round(sizeMB*100) / 100,
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{"models": models})
	})

	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var req generationRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		generateCalls++
		log.Printf("generate: model=%s max_tokens=%d from=%s call=%d",
			req.ModelName, req.MaxTokens, r.RemoteAddr, generateCalls)

		if *failAfter > 0 && generateCalls > *failAfter {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"detail": "simulated generation failure",
			})
			return
		}

		if *delay > 0 {
			time.Sleep(*delay)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"response": fmt.Sprintf("[port %d] completion for prompt of %d chars", *port, len(req.Prompt)),
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting fake inference backend on %s (models=%s)", addr, *modelsDir)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
