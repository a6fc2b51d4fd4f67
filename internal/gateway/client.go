package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client defines the long-running-operation calls of the gateway.
type Client interface {
	// StartOperation starts a long-running operation and returns its handle.
	StartOperation(ctx context.Context, endpoint string, payload any) (Operation, error)

	// PollOperation fetches the current state of an operation.
	PollOperation(ctx context.Context, handle string) (Operation, error)

	// DownloadArtifact downloads the binary result identified by artifactID.
	DownloadArtifact(ctx context.Context, artifactID string) ([]byte, error)
}

// HTTPClient is the HTTP implementation of the gateway Client interface.
// It also exposes the single-shot chat, image and speech endpoints.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	lroPrefix  string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithLROPrefix sets the path prefix under which the gateway exposes the
// provider's long-running-operation API (default "/gemini").
func WithLROPrefix(prefix string) ClientOption {
	return func(hc *HTTPClient) {
		hc.lroPrefix = prefix
	}
}

// NewClient creates a new gateway HTTP client for baseURL.
// An API key must be provided with WithAPIKey.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:   baseURL,
		lroPrefix: "/gemini",
		// Downloads of generated videos can take a while; per-call deadlines
		// come from the caller's context.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.lroPrefix != "" {
		c.lroPrefix = "/" + strings.Trim(c.lroPrefix, "/")
	}

	if strings.TrimSpace(c.apiKey) == "" {
		return nil, ErrAPIKeyRequired
	}

	return c, nil
}

// BaseURL returns the configured gateway base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// StartOperation POSTs payload to the provider endpoint (for example
// "models/veo-3.0-generate-preview:predictLongRunning") and returns the
// started operation.
func (c *HTTPClient) StartOperation(ctx context.Context, endpoint string, payload any) (Operation, error) {
	const op = "start operation"

	body, err := json.Marshal(payload)
	if err != nil {
		return Operation{}, fmt.Errorf("gateway: marshal %s payload: %w", op, err)
	}

	u := fmt.Sprintf("%s%s/v1beta/%s", c.baseURL, c.lroPrefix, strings.TrimLeft(endpoint, "/"))

	var resp Operation
	if err := c.doJSON(ctx, op, http.MethodPost, u, body, true, &resp); err != nil {
		return Operation{}, err
	}

	if resp.Name == "" {
		return Operation{}, NewContractError(op, "missing operation name", nil)
	}

	return resp, nil
}

// PollOperation GETs the operation addressed by handle.
func (c *HTTPClient) PollOperation(ctx context.Context, handle string) (Operation, error) {
	const op = "poll operation"

	if handle == "" {
		return Operation{}, ErrHandleRequired
	}

	u := fmt.Sprintf("%s%s/v1beta/%s", c.baseURL, c.lroPrefix, strings.TrimLeft(handle, "/"))

	var resp Operation
	if err := c.doJSON(ctx, op, http.MethodGet, u, nil, true, &resp); err != nil {
		return Operation{}, err
	}

	if resp.Name == "" {
		resp.Name = handle
	}

	return resp, nil
}

// DownloadArtifact streams the file identified by artifactID and returns
// the complete payload.
func (c *HTTPClient) DownloadArtifact(ctx context.Context, artifactID string) ([]byte, error) {
	const op = "download artifact"

	if artifactID == "" {
		return nil, ErrArtifactIDRequired
	}

	u := fmt.Sprintf("%s%s/download/v1beta/files/%s:download?alt=media",
		c.baseURL, c.lroPrefix, url.PathEscape(artifactID))

	req, err := c.newRequest(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s request failed: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("gateway: %s read body: %w", op, err)
	}

	return buf.Bytes(), nil
}

// ChatCompletions sends the conversation history to the OpenAI-compatible
// chat endpoint and returns the first choice.
func (c *HTTPClient) ChatCompletions(ctx context.Context, r ChatRequest) (*ChatResponse, error) {
	const op = "chat completions"

	reqBody := chatCompletionRequest{
		Model:       r.Model,
		Messages:    r.Messages,
		Temperature: r.Temperature,
	}
	if r.WebSearch {
		reqBody.WebSearchOptions = &webSearchOptions{SearchContextSize: "medium"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal %s request: %w", op, err)
	}

	var raw json.RawMessage
	if err := c.doJSON(ctx, op, http.MethodPost, c.baseURL+"/chat/completions", body, false, &raw); err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, NewContractError(op, "decode body", err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewContractError(op, "no choices", nil)
	}

	out := &ChatResponse{Model: resp.Model, Raw: raw}
	if content := resp.Choices[0].Message.Content; content != nil {
		out.Content = *content
	}
	return out, nil
}

// GenerateImage asks the gateway for one base64-encoded image.
func (c *HTTPClient) GenerateImage(ctx context.Context, r ImageRequest) (*ImageResponse, error) {
	const op = "image generation"

	body, err := json.Marshal(imageGenerationRequest{
		Model:          r.Model,
		Prompt:         r.Prompt,
		N:              1,
		Size:           r.Size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal %s request: %w", op, err)
	}

	var resp imageGenerationResponse
	if err := c.doJSON(ctx, op, http.MethodPost, c.baseURL+"/images/generations", body, false, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, NewContractError(op, "no image data", nil)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, NewContractError(op, "decode b64_json", err)
	}

	return &ImageResponse{Data: data, RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}

// Speech converts text to audio and returns the encoded audio bytes.
func (c *HTTPClient) Speech(ctx context.Context, r SpeechRequest) ([]byte, error) {
	const op = "speech"

	body, err := json.Marshal(speechRequest{
		Model:          r.Model,
		Input:          r.Input,
		Voice:          r.Voice,
		ResponseFormat: r.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal %s request: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/audio/speech", body, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s request failed: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}
	if len(respBody) == 0 {
		return nil, NewContractError(op, "empty audio body", nil)
	}

	return respBody, nil
}

// doJSON performs a single request and decodes a 2xx JSON body into result.
func (c *HTTPClient) doJSON(ctx context.Context, op, method, u string, body []byte, lro bool, result any) error {
	req, err := c.newRequest(ctx, method, u, body, lro)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s request failed: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway: %s read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return NewContractError(op, "decode body", err)
		}
	}

	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, u string, body []byte, lro bool) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if lro {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
