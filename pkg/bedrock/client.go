// Package bedrock generates images with an Amazon Titan image model on AWS Bedrock.
package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/savaki/jonbot/pkg/models"
)

const (
	// DefaultModelID is the Titan image generator used when none is configured
	DefaultModelID = "amazon.titan-image-generator-v2:0"

	serviceName = "image generation"
)

// API is the subset of the Bedrock Runtime client used for generation
type API interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

var _ API = (*bedrockruntime.Client)(nil)

// Client is an image provider backed by AWS Bedrock Runtime
type Client struct {
	client  API
	modelID string
	timeout time.Duration
}

// NewClient creates a new Bedrock client
func NewClient(cfg aws.Config, modelID string, timeout time.Duration) *Client {
	return NewClientWithAPI(bedrockruntime.NewFromConfig(cfg), modelID, timeout)
}

// NewClientWithAPI creates a Bedrock client over an existing API implementation
func NewClientWithAPI(api API, modelID string, timeout time.Duration) *Client {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &Client{
		client:  api,
		modelID: modelID,
		timeout: timeout,
	}
}

// TitanRequest is the Titan TEXT_IMAGE request body
type TitanRequest struct {
	TaskType              string                `json:"taskType"`
	TextToImageParams     TextToImageParams     `json:"textToImageParams"`
	ImageGenerationConfig ImageGenerationConfig `json:"imageGenerationConfig"`
}

// TextToImageParams holds the prompt
type TextToImageParams struct {
	Text string `json:"text"`
}

// ImageGenerationConfig holds size and count
type ImageGenerationConfig struct {
	NumberOfImages int `json:"numberOfImages"`
	Width          int `json:"width"`
	Height         int `json:"height"`
}

// TitanResponse is the Titan response body
type TitanResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// NeedsAPIKey reports false; requests are authorized with AWS credentials
func (c *Client) NeedsAPIKey() bool {
	return false
}

// ValidateKey accepts any key since none is used
func (c *Client) ValidateKey(ctx context.Context, key string) error {
	return nil
}

// Generate invokes the model for one image and returns its bytes
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error) {
	width, height := req.Resolution.Dimensions()

	body, err := json.Marshal(TitanRequest{
		TaskType:          "TEXT_IMAGE",
		TextToImageParams: TextToImageParams{Text: req.StyledPrompt()},
		ImageGenerationConfig: ImageGenerationConfig{
			NumberOfImages: 1,
			Width:          width,
			Height:         height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	log.Printf("[%s] Invoking Bedrock model %s (%dx%d)", req.RequestID, c.modelID, width, height)
	output, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		log.Printf("[%s] Bedrock invocation failed: %v", req.RequestID, err)
		return nil, classify(err)
	}

	var response TitanResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if response.Error != "" {
		return nil, &models.UpstreamError{Service: serviceName, Message: response.Error}
	}
	if len(response.Images) == 0 || response.Images[0] == "" {
		return nil, models.ErrNoImage
	}

	image, err := base64.StdEncoding.DecodeString(response.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	return image, nil
}

// classify separates service answers from failures to reach the service
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &models.UpstreamError{Service: serviceName, Message: apiErr.ErrorMessage()}
	}
	return &models.TransportError{Service: serviceName, Err: err}
}
