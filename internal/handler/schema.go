package handler

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// GenerationRequest mirrors the generation schema the backends accept.
// The balancer validates the shape and ranges, then forwards the raw
// payload untouched; defaults are the backend's business.
type GenerationRequest struct {
	Prompt      string   `json:"prompt"`
	ModelName   string   `json:"model_name"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

func (r GenerationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prompt, validation.Required),
		validation.Field(&r.ModelName, validation.Required),
		validation.Field(&r.MaxTokens, validation.Min(1), validation.Max(32768)),
		validation.Field(&r.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&r.TopK, validation.Min(1), validation.Max(100)),
		validation.Field(&r.TopP, validation.Min(0.0), validation.Max(1.0)),
	)
}

// GenerationResponse is the backend reply shape for /generate.
type GenerationResponse struct {
	Response string `json:"response"`
}

// completionRequest is the OpenAI-style completions shape accepted at
// /v1/completions and translated to the canonical generation payload.
type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

func (r completionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Model, validation.Required),
		validation.Field(&r.Prompt, validation.Required),
		validation.Field(&r.MaxTokens, validation.Min(1), validation.Max(32768)),
		validation.Field(&r.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&r.TopP, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (r completionRequest) toGeneration() GenerationRequest {
	return GenerationRequest{
		Prompt:      r.Prompt,
		ModelName:   r.Model,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
	}
}

type completionChoice struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

// errorResponse matches the backend error wire format.
type errorResponse struct {
	Detail string `json:"detail"`
}
