package handler

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/aigate/aigate/internal/inference"
)

// InferenceHandler is thin glue between the HTTP API and the model backend
// registry. The interesting policy work (authentication, scoping, auditing)
// happens in the middleware before these handlers run; here a missing
// backend is a plain 503.
type InferenceHandler struct {
	registry *inference.Registry
}

// NewInferenceHandler creates an InferenceHandler.
func NewInferenceHandler(registry *inference.Registry) *InferenceHandler {
	return &InferenceHandler{registry: registry}
}

var errBadAudio = errors.New("invalid base64 payload")

// generateRequest mirrors the completion/chat payload.
type generateRequest struct {
	Messages    []inference.Message `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	TopP        float64             `json:"top_p"`
	Stop        []string            `json:"stop,omitempty"`
}

func (r *generateRequest) params() inference.GenerateParams {
	p := inference.GenerateParams{
		Messages:    r.Messages,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stop:        r.Stop,
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 512
	}
	if p.TopP <= 0 {
		p.TopP = 0.9
	}
	return p
}

// Completion generates text from a prompt.
// POST /v1/generate/completion
func (h *InferenceHandler) Completion(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.generator(w)
	if !ok {
		return
	}

	var req generateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	result, err := gen.Generate(r.Context(), req.params())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Generation failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":          result.Text,
		"tokens_used":   result.TokensUsed,
		"finish_reason": result.FinishReason,
	})
}

// Chat generates an assistant reply for a chat conversation.
// POST /v1/generate/chat
func (h *InferenceHandler) Chat(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.generator(w)
	if !ok {
		return
	}

	var req generateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	result, err := gen.Generate(r.Context(), req.params())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Generation failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":        "assistant",
		"content":     result.Text,
		"tokens_used": result.TokensUsed,
	})
}

// Embeddings maps input texts to vectors.
// POST /v1/embeddings
func (h *InferenceHandler) Embeddings(w http.ResponseWriter, r *http.Request) {
	b, err := h.registry.Get(inference.CapEmbeddings)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Embedding model not available")
		return
	}
	embedder := b.(inference.Embedder)

	var req struct {
		Input []string `json:"input"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Input) == 0 {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	vectors, err := embedder.Embed(r.Context(), req.Input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Embedding failed: "+err.Error())
		return
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"embeddings": vectors,
		"dimensions": dims,
		"count":      len(vectors),
	})
}

// Transcribe converts base64-encoded audio into text.
// POST /v1/transcribe
func (h *InferenceHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	b, err := h.registry.Get(inference.CapTranscribe)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Transcription model not available")
		return
	}
	transcriber := b.(inference.Transcriber)

	var req struct {
		Audio    string `json:"audio"` // base64
		Language string `json:"language"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	audio, err := decodePayload(req.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid audio payload")
		return
	}

	text, err := transcriber.Transcribe(r.Context(), audio, req.Language)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Transcription failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":     text,
		"language": req.Language,
	})
}

// Recognize extracts text from a base64-encoded image.
// POST /v1/ocr/recognize
func (h *InferenceHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	b, err := h.registry.Get(inference.CapOCR)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "OCR model not available")
		return
	}
	recognizer := b.(inference.Recognizer)

	var req struct {
		Image string `json:"image"` // base64
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	image, err := decodePayload(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image payload")
		return
	}

	text, err := recognizer.Recognize(r.Context(), image)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Recognition failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"text": text})
}

func (h *InferenceHandler) generator(w http.ResponseWriter) (inference.Generator, bool) {
	b, err := h.registry.Get(inference.CapGenerate)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not available")
		return nil, false
	}
	return b.(inference.Generator), true
}

func decodePayload(s string) ([]byte, error) {
	if s == "" {
		return nil, errBadAudio
	}
	return base64.StdEncoding.DecodeString(s)
}
