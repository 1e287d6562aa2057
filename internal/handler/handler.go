package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/comeapi/loadbalancer/internal/dispatch"
	"github.com/comeapi/loadbalancer/internal/pool"
)

// maxRequestBody bounds inbound payloads; prompts are text, not uploads.
const maxRequestBody = 4 << 20

// Forwarder delivers an opaque payload to the backend pool.
type Forwarder interface {
	Forward(ctx context.Context, method, path string, body []byte, contentType string) (*dispatch.Result, error)
}

// Handler exposes the inbound HTTP surface: generation, model listing
// and pool status. It validates request schemas at the edge and keeps
// the forwarder payload-agnostic.
type Handler struct {
	logger    *slog.Logger
	forwarder Forwarder
	registry  *pool.Registry
}

func New(logger *slog.Logger, forwarder Forwarder, registry *pool.Registry) *Handler {
	return &Handler{
		logger:    logger,
		forwarder: forwarder,
		registry:  registry,
	}
}

// Root serves the balancer banner with an inline status snapshot.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "ComeAPI Load Balancer",
		"status":  h.registry.Snapshot(),
	})
}

// Status serves the detailed pool health snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

// Models proxies the model listing to a backend.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	result, err := h.forwarder.Forward(r.Context(), http.MethodGet, "/models", nil, "")
	if err != nil {
		h.writeForwardError(w, r, err)
		return
	}
	writeProxied(w, result)
}

// Generate validates the generation payload and forwards the raw body
// to a backend.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req GenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.logger.Info("Forwarding generation request",
		slog.String("model", req.ModelName),
		slog.Int("prompt_len", len(req.Prompt)))

	result, err := h.forwarder.Forward(r.Context(), http.MethodPost, "/generate", body, "application/json")
	if err != nil {
		h.writeForwardError(w, r, err)
		return
	}
	writeProxied(w, result)
}

// Completions accepts an OpenAI-style completions payload, translates
// it to the canonical generation request, and wraps the backend reply
// in a completion envelope.
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req completionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	payload, err := json.Marshal(req.toGeneration())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode generation payload")
		return
	}

	result, err := h.forwarder.Forward(r.Context(), http.MethodPost, "/generate", payload, "application/json")
	if err != nil {
		h.writeForwardError(w, r, err)
		return
	}

	if result.StatusCode < 200 || result.StatusCode >= 300 {
		writeProxied(w, result)
		return
	}

	var generated GenerationResponse
	if err := json.Unmarshal(result.Body, &generated); err != nil {
		writeError(w, http.StatusBadGateway, "backend returned an unexpected response shape")
		return
	}

	writeJSON(w, http.StatusOK, completionResponse{
		ID:      "cmpl-" + randomID(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []completionChoice{
			{Text: generated.Response, Index: 0, FinishReason: "stop"},
		},
	})
}

func (h *Handler) writeForwardError(w http.ResponseWriter, r *http.Request, err error) {
	var exhausted *dispatch.PoolExhaustedError
	if errors.As(err, &exhausted) {
		h.logger.Warn("Pool exhausted",
			slog.String("path", r.URL.Path),
			slog.Int("attempts", exhausted.Attempts))
		if exhausted.Attempts == 0 {
			writeError(w, http.StatusServiceUnavailable, "no healthy backend available")
			return
		}
		writeError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("all %d attempted backends failed", exhausted.Attempts))
		return
	}

	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to write.
		return
	}

	h.logger.Error("Forwarding failed", slog.Any("err", err))
	writeError(w, http.StatusBadGateway, "backend request failed")
}

func writeProxied(w http.ResponseWriter, result *dispatch.Result) {
	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func randomID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "0"
	}
	return hex.EncodeToString(b)
}
