package inference

import "context"

// Capability names for the model backends the API exposes. The auth core
// treats these as opaque collaborators; a missing backend surfaces as 503
// at the handler, never as an authentication decision.
const (
	CapGenerate   = "generate"
	CapEmbeddings = "embeddings"
	CapTranscribe = "transcribe"
	CapOCR        = "ocr"
)

// Backend is a loaded model serving exactly one capability.
type Backend interface {
	Capability() string
}

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateParams are the decoding options for text generation.
type GenerateParams struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// GenerateResult is the outcome of a completion call.
type GenerateResult struct {
	Text         string
	TokensUsed   int
	FinishReason string
}

// Generator produces text from a prompt.
type Generator interface {
	Backend
	Generate(ctx context.Context, p GenerateParams) (*GenerateResult, error)
}

// Embedder maps input texts to dense vectors.
type Embedder interface {
	Backend
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Transcriber converts audio into text.
type Transcriber interface {
	Backend
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Recognizer extracts text from an image.
type Recognizer interface {
	Backend
	Recognize(ctx context.Context, image []byte) (string, error)
}
