package handler

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/savaki/jonbot/pkg/imagegen"
	"github.com/savaki/jonbot/pkg/models"
	"github.com/savaki/jonbot/pkg/tenant"
)

// Platform is the chat platform surface the bot handlers use
type Platform interface {
	imagegen.Platform
	FetchMessage(ctx context.Context, teamID, channelID, ts string) (models.Message, error)
	OpenView(ctx context.Context, teamID, triggerID string, view slack.ModalViewRequest) error
}

// Bot implements the commands, interactions and events of jonbot
type Bot struct {
	store        tenant.Store
	platform     Platform
	orchestrator *imagegen.Orchestrator
}

// NewBot creates a new bot
func NewBot(store tenant.Store, platform Platform, orchestrator *imagegen.Orchestrator) *Bot {
	return &Bot{
		store:        store,
		platform:     platform,
		orchestrator: orchestrator,
	}
}

// Registry builds the dispatch tables for the bot
func (b *Bot) Registry() *Registry {
	return NewRegistry(
		[]Command{
			{Name: "config", Description: "Configure jonbot settings", Run: b.configCommand},
			{Name: "generate", Description: "Generate an image from a text prompt", Run: b.generateCommand("generate")},
			{Name: "gen", Description: "Short for generate", Run: b.generateCommand("gen")},
			{Name: HelpCommand, Description: "List all commands", Run: helpCommand},
		},
		map[string]HandlerFunc{
			string(slack.InteractionTypeBlockActions):   b.blockActions,
			string(slack.InteractionTypeViewSubmission): b.viewSubmission,
		},
		map[string]HandlerFunc{
			TypeURLVerification:               urlVerification,
			string(slackevents.AppMention):    b.appMention,
			string(slackevents.ReactionAdded): b.reactionAdded,
		},
	)
}

func (b *Bot) needsAPIKey(cfg models.TenantConfig) bool {
	return b.orchestrator.Generator().NeedsAPIKey() && cfg.GenerationAPIKey == ""
}
