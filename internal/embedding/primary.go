package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tas-rag-core/models"
)

// PrimaryClient is the hosted embedding model contract: text in, a unit-length
// 1536-d vector out. Wrapped behind this small interface so tests inject a
// fake instead of calling out (spec.md §4.1).
type PrimaryClient interface {
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// httpEmbeddingClient reaches a hosted embeddings-compatible endpoint the way
// the teacher's MemoryConsolidationServiceImpl.GenerateSummary reaches its LLM
// router: a plain *http.Client POST against a configured base URL with a
// bearer token (services/memory/consolidation.go).
type httpEmbeddingClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPPrimaryClient(baseURL, apiKey string, timeout time.Duration) PrimaryClient {
	return &httpEmbeddingClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *httpEmbeddingClient) Embed(ctx context.Context, text, model string) ([]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Input: text, Model: model})
	if err != nil {
		return nil, models.NewInternalError("failed to marshal embedding request", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, models.NewInternalError("failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewUpstreamError("embedding API call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		return nil, models.NewUpstreamAuthError(fmt.Sprintf("embedding API returned 401: %s", string(body)), nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, models.NewUpstreamError(fmt.Sprintf("embedding API returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.NewUpstreamError("failed to decode embedding response", err)
	}
	if len(parsed.Data) == 0 {
		return nil, models.NewUpstreamError("embedding API returned no data", nil)
	}
	return parsed.Data[0].Embedding, nil
}
