// Package gateway provides an HTTP client for the generative-AI gateway.
// It covers the long-running-operation endpoints used for video generation
// and the single-shot chat, image and speech endpoints. The client keeps no
// state between calls and never retries.
package gateway

import "encoding/json"

// Operation is the gateway's view of a long-running operation.
type Operation struct {
	// Name is the opaque operation handle assigned by the gateway.
	Name string `json:"name"`
	// Done reports whether the operation reached a terminal state remotely.
	Done bool `json:"done"`
	// Response is the provider-specific result payload, present when Done.
	Response json.RawMessage `json:"response,omitempty"`
	// Error is set when the remote operation finished with an error.
	Error *OperationStatus `json:"error,omitempty"`
}

// OperationStatus is the error object of a finished operation.
type OperationStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ChatMessage is a single OpenAI-compatible chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest contains the parameters of a chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	// WebSearch enables the gateway's web search tool with medium context.
	WebSearch bool
}

// ChatResponse is the parsed result of a chat completion.
type ChatResponse struct {
	Content string
	Model   string
	// Raw is the unmodified response body, kept for the interaction log.
	Raw json.RawMessage
}

// ImageRequest contains the parameters of an image generation call.
type ImageRequest struct {
	Model  string
	Prompt string
	Size   string // optional, e.g. "1024x1024"
}

// ImageResponse is the decoded first image of an image generation call.
type ImageResponse struct {
	Data          []byte
	RevisedPrompt string
}

// SpeechRequest contains the parameters of a text-to-speech call.
type SpeechRequest struct {
	Model  string
	Input  string
	Voice  string
	Format string // optional, e.g. "wav", "mp3"
}

type chatCompletionRequest struct {
	Model            string            `json:"model"`
	Messages         []ChatMessage     `json:"messages"`
	Temperature      float64           `json:"temperature"`
	WebSearchOptions *webSearchOptions `json:"web_search_options,omitempty"`
}

type webSearchOptions struct {
	SearchContextSize string `json:"search_context_size"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageGenerationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}
