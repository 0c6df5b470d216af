package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/savaki/jonbot/pkg/models"
	"github.com/savaki/jonbot/pkg/tenant"
)

const (
	actionOpenConfig = "open_config"

	missingKeyText = "I need an API key to generate images. Please use `/jonbot config` to set up your API key first."
)

// commandResponse is the JSON body answering a slash command
type commandResponse struct {
	ResponseType string        `json:"response_type"`
	Text         string        `json:"text,omitempty"`
	Blocks       []slack.Block `json:"blocks,omitempty"`
}

func ephemeral(req *Request, text string) {
	req.JSON(http.StatusOK, commandResponse{ResponseType: slack.ResponseTypeEphemeral, Text: text})
}

func helpCommand(ctx context.Context, req *Request) error {
	var sb strings.Builder
	for _, c := range req.Registry.Commands() {
		fmt.Fprintf(&sb, "/%s - %s\n", c.Name, c.Description)
	}
	ephemeral(req, sb.String())
	return nil
}

func (b *Bot) configCommand(ctx context.Context, req *Request) error {
	teamID := req.Envelope.TeamID()
	cfg, err := tenant.Load(ctx, b.store, teamID)
	if err != nil {
		return fmt.Errorf("load config for team %s: %w", teamID, err)
	}

	apiKey := "_not set_"
	if cfg.GenerationAPIKey != "" {
		apiKey = "`" + models.MaskSecret(cfg.GenerationAPIKey) + "`"
	}
	connected := "no"
	if cfg.PlatformAccessToken != "" {
		connected = "yes"
	}

	button := slack.NewButtonBlockElement(actionOpenConfig, teamID,
		slack.NewTextBlockObject(slack.PlainTextType, "Open settings", true, false)).
		WithStyle(slack.StylePrimary)

	req.JSON(http.StatusOK, commandResponse{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         "Jonbot Configuration",
		Blocks: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Jonbot Configuration", true, false)),
			slack.NewSectionBlock(nil, []*slack.TextBlockObject{
				slack.NewTextBlockObject(slack.MarkdownType, "*API key*\n"+apiKey, false, false),
				slack.NewTextBlockObject(slack.MarkdownType, "*Workspace token*\n"+connected, false, false),
				slack.NewTextBlockObject(slack.MarkdownType, "*Resolution*\n"+string(cfg.Resolution.OrDefault()), false, false),
				slack.NewTextBlockObject(slack.MarkdownType, "*Style*\n"+string(cfg.Style.OrDefault()), false, false),
			}, nil),
			slack.NewActionBlock("config_actions", button),
		},
	})
	return nil
}

func (b *Bot) generateCommand(name string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		cmd := req.Envelope.Command()
		prompt := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd.Text), name))
		if prompt == "" {
			ephemeral(req, fmt.Sprintf("Usage: `%s %s <prompt>`", commandName(cmd.Command), name))
			return nil
		}

		teamID := req.Envelope.TeamID()
		cfg, err := tenant.Load(ctx, b.store, teamID)
		if err != nil {
			return fmt.Errorf("load config for team %s: %w", teamID, err)
		}
		if b.needsAPIKey(cfg) {
			ephemeral(req, missingKeyText)
			return nil
		}

		genReq := models.NewGenerationRequest(prompt, cfg)
		dest := models.Destination{
			ResponseURL: cmd.ResponseURL,
			ChannelID:   cmd.ChannelID,
			TeamID:      teamID,
			UserID:      cmd.UserID,
			ThreadTS:    cmd.ThreadTS,
		}

		ephemeral(req, fmt.Sprintf("Generating image for prompt: \"%s\"... This may take a few moments.", prompt))
		req.After(func(ctx context.Context) {
			b.orchestrator.RunAndReport(ctx, genReq, dest)
		})
		return nil
	}
}

func commandName(command string) string {
	if command == "" {
		return "/jonbot"
	}
	return command
}
