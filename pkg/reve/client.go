// Package reve is the client for the Reve image generation API.
package reve

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/savaki/jonbot/pkg/models"
)

const (
	serviceName = "image generation"

	generatePath = "/api/misc/simple_generation"
	userInfoPath = "/api/misc/userinfo"

	// maxLoggedBody caps provider bodies written to the log
	maxLoggedBody = 4000
)

// Client calls the Reve API with a per-request API key
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Reve client. Generation calls are bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a Reve client using an existing http.Client
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	ImageBase64 string `json:"image_base64"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// NeedsAPIKey reports that every call is authorized with the team's key
func (c *Client) NeedsAPIKey() bool {
	return true
}

// Generate requests one image for the prompt and returns the decoded image bytes
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error) {
	payload, err := json.Marshal(generateRequest{Prompt: req.StyledPrompt()})
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	url := c.baseURL + generatePath
	log.Printf("[%s] HTTP request to %s", req.RequestID, url)

	body, status, err := c.do(ctx, http.MethodPost, url, req.APIKey, payload)
	if err != nil {
		log.Printf("[%s] HTTP request error: %v", req.RequestID, err)
		return nil, err
	}

	if status != http.StatusOK {
		log.Printf("[%s] HTTP request failed: %d\nResponse body: %s", req.RequestID, status, truncate(body))
		return nil, upstreamError(status, body)
	}
	log.Printf("[%s] HTTP request completed successfully. Response size: %d bytes", req.RequestID, len(body))

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &models.UpstreamError{Service: serviceName, Status: status, Message: "unreadable response"}
	}
	if resp.ImageBase64 == "" {
		return nil, models.ErrNoImage
	}

	image, err := base64.StdEncoding.DecodeString(resp.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	return image, nil
}

// ValidateKey checks that key is accepted by the API. The returned error
// carries the provider's message when it sent one.
func (c *Client) ValidateKey(ctx context.Context, key string) error {
	body, status, err := c.do(ctx, http.MethodGet, c.baseURL+userInfoPath, key, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return upstreamError(status, body)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url, key string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, &models.TransportError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &models.TransportError{Service: serviceName, Err: err}
	}

	return body, resp.StatusCode, nil
}

// upstreamError uses the provider's JSON message when present, else the status code
func upstreamError(status int, body []byte) error {
	var resp errorResponse
	message := fmt.Sprintf("Error %d", status)
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		message = resp.Message
	}
	return &models.UpstreamError{Service: serviceName, Status: status, Message: message}
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
