// Package imagegen runs one image generation attempt from prompt to
// uploaded file and reports the outcome to the user.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/savaki/jonbot/pkg/imaging"
	"github.com/savaki/jonbot/pkg/models"
	jslack "github.com/savaki/jonbot/pkg/slack"
)

// Generator produces an image for a prompt
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error)
	ValidateKey(ctx context.Context, key string) error
	NeedsAPIKey() bool
}

// Platform is the chat platform surface used by the pipeline
type Platform interface {
	PostToResponseURL(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error
	PostChannelMessage(ctx context.Context, teamID, channelID, text, threadTS string) (string, error)
	PostEphemeral(ctx context.Context, teamID, channelID, userID, text, threadTS string) error
	JoinChannel(ctx context.Context, teamID, channelID string) error
	GetUploadURL(ctx context.Context, teamID, filename, altText string, size int) (jslack.UploadSlot, error)
	UploadBytes(ctx context.Context, slot jslack.UploadSlot, data []byte, contentType string) error
	CompleteUpload(ctx context.Context, teamID string, slot jslack.UploadSlot, title, channelID, threadTS string) error
}

var _ Platform = (*jslack.Client)(nil)

// Orchestrator drives generate, transcode, upload and notify for one request
type Orchestrator struct {
	generator Generator
	platform  Platform
	quality   int
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(generator Generator, platform Platform) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		platform:  platform,
		quality:   imaging.DefaultQuality,
	}
}

// Generator returns the provider the orchestrator generates with
func (o *Orchestrator) Generator() Generator {
	return o.generator
}

// Run executes one attempt. Failures the provider reports are posted to dest
// as an ephemeral notice and Run returns nil. Any other failure, including
// every upload failure, is returned for the caller to report.
func (o *Orchestrator) Run(ctx context.Context, req models.GenerationRequest, dest models.Destination) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if o.generator.NeedsAPIKey() && req.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if req.RequestID == "" {
		req.RequestID = models.NewRequestID()
	}
	log.Printf("[%s] Generating image for team %s in channel %s", req.RequestID, dest.TeamID, dest.ChannelID)

	// Joining the channel lets the bot post without an invite. Its outcome
	// never gates the rest of the attempt.
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		if dest.ChannelID == "" {
			return
		}
		if err := o.platform.JoinChannel(ctx, dest.TeamID, dest.ChannelID); err != nil {
			log.Printf("[%s] Warning: failed to join channel %s: %v", req.RequestID, dest.ChannelID, err)
		}
	}()
	defer func() { <-joined }()

	raw, err := o.generator.Generate(ctx, req)
	if err != nil {
		if text, ok := providerFailure(err); ok {
			log.Printf("[%s] Generation failed: %v", req.RequestID, err)
			o.Notify(ctx, dest, text, true)
			return nil
		}
		return fmt.Errorf("generate image: %w", err)
	}

	image, err := imaging.ToJPEG(raw, o.quality)
	if err != nil {
		return fmt.Errorf("transcode image: %w", err)
	}
	log.Printf("[%s] Transcoded image: %d bytes", req.RequestID, len(image))

	title := Title(req.Prompt)
	slot, err := o.platform.GetUploadURL(ctx, dest.TeamID, Filename(req.Prompt), req.Prompt, len(image))
	if err != nil {
		return fmt.Errorf("get upload url: %w", err)
	}
	if err := o.platform.UploadBytes(ctx, slot, image, imaging.ContentType); err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	if err := o.platform.CompleteUpload(ctx, dest.TeamID, slot, title, dest.ChannelID, dest.ThreadTS); err != nil {
		return fmt.Errorf("complete upload: %w", err)
	}
	log.Printf("[%s] Image uploaded successfully as %s", req.RequestID, slot.FileID)

	o.Notify(ctx, dest, title, false)
	return nil
}

// RunAndReport runs the attempt and converts a returned error into one
// ephemeral notice. It is the boundary for background generations.
func (o *Orchestrator) RunAndReport(ctx context.Context, req models.GenerationRequest, dest models.Destination) {
	if err := o.Run(ctx, req, dest); err != nil {
		log.Printf("ERROR: [%s] image generation failed: %v", req.RequestID, err)
		o.Notify(ctx, dest, models.UserMessage(err), true)
	}
}

// Notify posts text to dest. The response URL is preferred; without one an
// ephemeral notice goes to the user when known, anything else to the thread.
// Delivery failures are logged and dropped.
func (o *Orchestrator) Notify(ctx context.Context, dest models.Destination, text string, ephemeral bool) {
	var err error
	switch {
	case dest.ResponseURL != "":
		responseType := slack.ResponseTypeInChannel
		if ephemeral {
			responseType = slack.ResponseTypeEphemeral
		}
		err = o.platform.PostToResponseURL(ctx, dest.ResponseURL, &slack.WebhookMessage{
			Text:         text,
			ResponseType: responseType,
		})
	case ephemeral && dest.UserID != "":
		err = o.platform.PostEphemeral(ctx, dest.TeamID, dest.ChannelID, dest.UserID, text, dest.ThreadTS)
	default:
		_, err = o.platform.PostChannelMessage(ctx, dest.TeamID, dest.ChannelID, text, dest.ThreadTS)
	}
	if err != nil {
		log.Printf("Warning: failed to deliver notice to %s: %v", dest.ChannelID, err)
	}
}

// providerFailure returns the user-facing text for failures the provider
// reported or that prevented reaching it
func providerFailure(err error) (string, bool) {
	var upstream *models.UpstreamError
	var transport *models.TransportError
	switch {
	case errors.Is(err, models.ErrNoImage):
		return models.UserMessage(err), true
	case errors.As(err, &upstream):
		message := upstream.Message
		if message == "" {
			message = fmt.Sprintf("Error %d", upstream.Status)
		}
		return "Failed to generate image: " + message, true
	case errors.As(err, &transport):
		return models.UserMessage(err), true
	}
	return "", false
}
