package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// generateRequest is the JSON body posted to the generation service.
type generateRequest struct {
	Question string `json:"question"`
}

// generateResponse maps one element of the service's response array.
type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Client abstracts the external text-generation service: one call per
// requested answer variant. Mocking this interface in tests gives full
// control over per-variant behaviour without real HTTP calls.
type Client interface {
	Generate(ctx context.Context, question string) (string, error)
}

// HTTPClient calls the generation service over HTTP.
// The base URL is injected from config so tests can point to a local mock.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate posts the question body and returns the first generated text.
// The service replies with a JSON array of candidates; the reference
// service returns exactly one element per call.
func (c *HTTPClient) Generate(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(generateRequest{Question: question})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected generation service status: %d", resp.StatusCode)
	}

	var candidates []generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("generation service returned no candidates")
	}
	return candidates[0].GeneratedText, nil
}

// compile-time check that HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
