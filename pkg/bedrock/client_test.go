package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/savaki/jonbot/pkg/models"
)

// MockBedrockAPI mocks the Bedrock Runtime client for testing
type MockBedrockAPI struct {
	InvokeModelFunc func(ctx context.Context, params *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *MockBedrockAPI) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return m.InvokeModelFunc(ctx, params)
}

func TestGenerate(t *testing.T) {
	var sent TitanRequest
	var modelID string
	mock := &MockBedrockAPI{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
			modelID = *params.ModelId
			if err := json.Unmarshal(params.Body, &sent); err != nil {
				t.Fatalf("unmarshal request: %v", err)
			}
			body, _ := json.Marshal(TitanResponse{Images: []string{base64.StdEncoding.EncodeToString([]byte("png"))}})
			return &bedrockruntime.InvokeModelOutput{Body: body}, nil
		},
	}

	client := NewClientWithAPI(mock, "", time.Second)
	image, err := client.Generate(context.Background(), models.GenerationRequest{
		Prompt:     "a lighthouse",
		Style:      models.StylePainting,
		Resolution: models.ResolutionLandscape,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if string(image) != "png" {
		t.Errorf("image = %q, want png", image)
	}
	if modelID != DefaultModelID {
		t.Errorf("model = %s, want %s", modelID, DefaultModelID)
	}
	if sent.TaskType != "TEXT_IMAGE" {
		t.Errorf("taskType = %s, want TEXT_IMAGE", sent.TaskType)
	}
	if sent.ImageGenerationConfig.Width != 1280 || sent.ImageGenerationConfig.Height != 768 {
		t.Errorf("size = %dx%d, want 1280x768", sent.ImageGenerationConfig.Width, sent.ImageGenerationConfig.Height)
	}
	if sent.TextToImageParams.Text == "a lighthouse" {
		t.Error("style modifier should be applied to the prompt")
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		output *bedrockruntime.InvokeModelOutput
		err    error
		check  func(t *testing.T, err error)
	}{
		{
			name: "service error",
			err:  &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Too many requests"},
			check: func(t *testing.T, err error) {
				var upstream *models.UpstreamError
				if !errors.As(err, &upstream) || upstream.Message != "Too many requests" {
					t.Errorf("error = %v, want upstream Too many requests", err)
				}
			},
		},
		{
			name: "network error",
			err:  errors.New("dial tcp: connection refused"),
			check: func(t *testing.T, err error) {
				var transport *models.TransportError
				if !errors.As(err, &transport) {
					t.Errorf("error = %v, want transport error", err)
				}
			},
		},
		{
			name:   "content filtered",
			output: &bedrockruntime.InvokeModelOutput{Body: []byte(`{"images":[],"error":"blocked by content filters"}`)},
			check: func(t *testing.T, err error) {
				if models.UserMessage(err) == "" || !errors.As(err, new(*models.UpstreamError)) {
					t.Errorf("error = %v, want upstream error", err)
				}
			},
		},
		{
			name:   "no image",
			output: &bedrockruntime.InvokeModelOutput{Body: []byte(`{"images":[]}`)},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, models.ErrNoImage) {
					t.Errorf("error = %v, want ErrNoImage", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockBedrockAPI{
				InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
					return tt.output, tt.err
				},
			}
			_, err := NewClientWithAPI(mock, "m", time.Second).Generate(context.Background(), models.GenerationRequest{Prompt: "x"})
			if err == nil {
				t.Fatal("Generate() should fail")
			}
			tt.check(t, err)
		})
	}
}

func TestNoAPIKeyNeeded(t *testing.T) {
	client := NewClientWithAPI(&MockBedrockAPI{}, "", 0)
	if client.NeedsAPIKey() {
		t.Error("NeedsAPIKey() should be false")
	}
	if err := client.ValidateKey(context.Background(), ""); err != nil {
		t.Errorf("ValidateKey() error = %v", err)
	}
}
