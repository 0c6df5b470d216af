package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack/slackevents"

	"github.com/savaki/jonbot/pkg/models"
	"github.com/savaki/jonbot/pkg/tenant"
)

const (
	triggerReaction = "robot_face"
	greetingText    = "Hello! Mention me with a prompt and I'll draw it for you."
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

func urlVerification(ctx context.Context, req *Request) error {
	req.Text(http.StatusOK, req.Envelope.Challenge())
	return nil
}

func (b *Bot) appMention(ctx context.Context, req *Request) error {
	event, err := req.Envelope.Event()
	if err != nil {
		return err
	}
	mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent)
	if !ok {
		return fmt.Errorf("unexpected app_mention payload %T", event.InnerEvent.Data)
	}

	teamID := req.Envelope.TeamID()
	prompt := strings.TrimSpace(mentionPattern.ReplaceAllString(mention.Text, ""))
	threadTS := mention.ThreadTimeStamp
	if threadTS == "" {
		threadTS = mention.TimeStamp
	}
	dest := models.Destination{
		ChannelID: mention.Channel,
		TeamID:    teamID,
		UserID:    mention.User,
		ThreadTS:  threadTS,
	}

	req.After(func(ctx context.Context) {
		if prompt == "" {
			b.postThread(ctx, dest, greetingText)
			return
		}
		b.generateFromEvent(ctx, prompt, dest)
	})
	return nil
}

func (b *Bot) reactionAdded(ctx context.Context, req *Request) error {
	event, err := req.Envelope.Event()
	if err != nil {
		return err
	}
	reaction, ok := event.InnerEvent.Data.(*slackevents.ReactionAddedEvent)
	if !ok {
		return fmt.Errorf("unexpected reaction_added payload %T", event.InnerEvent.Data)
	}

	if reaction.Item.Type != "message" {
		log.Printf("Ignoring reaction to non-message item: %s", reaction.Item.Type)
		return nil
	}
	if reaction.Reaction != triggerReaction {
		log.Printf("Ignoring non-%s reaction: %s", triggerReaction, reaction.Reaction)
		return nil
	}

	teamID := req.Envelope.TeamID()
	channelID := reaction.Item.Channel
	ts := reaction.Item.Timestamp
	userID := reaction.User
	log.Printf("Processing %s reaction to message in channel %s with ts %s", triggerReaction, channelID, ts)

	req.After(func(ctx context.Context) {
		msg, err := b.platform.FetchMessage(ctx, teamID, channelID, ts)
		if models.IsNotFound(err) {
			log.Printf("Reacted message %s in %s no longer exists", ts, channelID)
			return
		}
		if err != nil {
			log.Printf("ERROR: fetching reacted message %s in %s: %v", ts, channelID, err)
			return
		}

		prompt := strings.TrimSpace(msg.Text)
		if prompt == "" {
			log.Printf("Ignoring empty message %s", ts)
			return
		}

		b.generateFromEvent(ctx, prompt, models.Destination{
			ChannelID: channelID,
			TeamID:    teamID,
			UserID:    userID,
			ThreadTS:  msg.ReplyThread(),
		})
	})
	return nil
}

// generateFromEvent checks the team settings, announces the generation in
// the thread and runs it
func (b *Bot) generateFromEvent(ctx context.Context, prompt string, dest models.Destination) {
	cfg, err := tenant.Load(ctx, b.store, dest.TeamID)
	if err != nil {
		log.Printf("ERROR: loading config for team %s: %v", dest.TeamID, err)
		return
	}
	if b.needsAPIKey(cfg) {
		log.Printf("No API key configured for team %s", dest.TeamID)
		b.postThread(ctx, dest, missingKeyText)
		return
	}

	b.postThread(ctx, dest, fmt.Sprintf("Generating an image from: \"%s\"", preview(prompt, 100)))
	b.orchestrator.RunAndReport(ctx, models.NewGenerationRequest(prompt, cfg), dest)
}

func (b *Bot) postThread(ctx context.Context, dest models.Destination, text string) {
	ts, err := b.platform.PostChannelMessage(ctx, dest.TeamID, dest.ChannelID, text, dest.ThreadTS)
	if err != nil {
		log.Printf("Warning: failed to post to %s: %v", dest.ChannelID, err)
		return
	}
	log.Printf("Posted message %s to %s", ts, dest.ChannelID)
}

// preview truncates s to n characters, marking truncation with "..."
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
