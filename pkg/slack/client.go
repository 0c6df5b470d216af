// Package slack wraps the Slack Web API calls the bot makes on behalf of a team.
package slack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/slack-go/slack"

	"github.com/savaki/jonbot/pkg/models"
)

const serviceName = "Slack"

// DefaultAPIURL is the production Web API base
const DefaultAPIURL = "https://slack.com/api/"

// TokenResolver returns the access token to use for a team
type TokenResolver interface {
	ResolveToken(ctx context.Context, teamID string) (string, error)
}

// UploadSlot is the destination issued by files.getUploadURLExternal
type UploadSlot struct {
	URL    string
	FileID string
}

// Client performs Slack calls, resolving the team's token on every call
type Client struct {
	tokens     TokenResolver
	apiURL     string
	httpClient *http.Client
}

// NewClient creates a new Slack client. apiURL may be empty for the production API.
func NewClient(tokens TokenResolver, apiURL string, httpClient *http.Client) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		tokens:     tokens,
		apiURL:     strings.TrimRight(apiURL, "/") + "/",
		httpClient: httpClient,
	}
}

// api returns a slack.Client authorized for teamID
func (c *Client) api(ctx context.Context, teamID string) (*slack.Client, error) {
	token, err := c.tokens.ResolveToken(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("resolve token for team %q: %w", teamID, err)
	}
	return slack.New(token, slack.OptionHTTPClient(c.httpClient), slack.OptionAPIURL(c.apiURL)), nil
}

// PostToResponseURL posts msg to a slash command or interaction response_url.
// Non-2xx answers are logged and dropped; only transport failures are returned.
func (c *Client) PostToResponseURL(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error {
	err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, c.httpClient, msg)
	if err == nil {
		return nil
	}

	var statusErr slack.StatusCodeError
	var rateErr *slack.RateLimitedError
	switch {
	case errors.As(err, &statusErr):
		log.Printf("Warning: response_url answered %d %s", statusErr.Code, statusErr.Status)
		return nil
	case errors.As(err, &rateErr):
		log.Printf("Warning: response_url rate limited, retry after %s", rateErr.RetryAfter)
		return nil
	}
	return &models.TransportError{Service: serviceName, Err: err}
}

// PostChannelMessage posts text to a channel, optionally in a thread, and
// returns the message timestamp
func (c *Client) PostChannelMessage(ctx context.Context, teamID, channelID, text, threadTS string) (string, error) {
	api, err := c.api(ctx, teamID)
	if err != nil {
		return "", err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, timestamp, err := api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("post message: %w", classify(err))
	}

	return timestamp, nil
}

// PostEphemeral posts text visible only to userID
func (c *Client) PostEphemeral(ctx context.Context, teamID, channelID, userID, text, threadTS string) error {
	api, err := c.api(ctx, teamID)
	if err != nil {
		return err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, err := api.PostEphemeralContext(ctx, channelID, userID, opts...); err != nil {
		return fmt.Errorf("post ephemeral: %w", classify(err))
	}

	return nil
}

// FetchMessage looks up the message at ts. Channel history only holds top
// level messages, so when history answers with a different message the
// thread replies are searched for the exact timestamp.
func (c *Client) FetchMessage(ctx context.Context, teamID, channelID, ts string) (models.Message, error) {
	api, err := c.api(ctx, teamID)
	if err != nil {
		return models.Message{}, err
	}

	history, err := api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("get conversation history: %w", classify(err))
	}
	if len(history.Messages) > 0 && history.Messages[0].Timestamp == ts {
		return toMessage(channelID, history.Messages[0]), nil
	}

	replies, _, _, err := api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: ts,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("get conversation replies: %w", classify(err))
	}
	for _, msg := range replies {
		if msg.Timestamp == ts {
			return toMessage(channelID, msg), nil
		}
	}

	return models.Message{}, fmt.Errorf("message %s in %s: %w", ts, channelID, models.ErrNotFound)
}

// JoinChannel joins channelID. Already being a member counts as success.
func (c *Client) JoinChannel(ctx context.Context, teamID, channelID string) error {
	api, err := c.api(ctx, teamID)
	if err != nil {
		return err
	}

	_, warning, _, err := api.JoinConversationContext(ctx, channelID)
	if err != nil {
		if isAlreadyInChannel(err) {
			return nil
		}
		return fmt.Errorf("join conversation: %w", classify(err))
	}
	if warning != "" && warning != "already_in_channel" {
		log.Printf("Warning: joining %s: %s", channelID, warning)
	}

	return nil
}

// GetUploadURL requests an upload slot for a file of size bytes. altText
// describes the image for screen readers.
func (c *Client) GetUploadURL(ctx context.Context, teamID, filename, altText string, size int) (UploadSlot, error) {
	api, err := c.api(ctx, teamID)
	if err != nil {
		return UploadSlot{}, err
	}

	resp, err := api.GetUploadURLExternalContext(ctx, slack.GetUploadURLExternalParameters{
		FileName: filename,
		FileSize: size,
		AltTxt:   altText,
	})
	if err != nil {
		return UploadSlot{}, fmt.Errorf("get upload url: %w", classify(err))
	}
	if resp.UploadURL == "" || resp.FileID == "" {
		return UploadSlot{}, fmt.Errorf("get upload url: %w", &models.UpstreamError{Service: serviceName, Message: "no upload url issued"})
	}

	return UploadSlot{URL: resp.UploadURL, FileID: resp.FileID}, nil
}

// UploadBytes sends the file body to an upload slot
func (c *Client) UploadBytes(ctx context.Context, slot UploadSlot, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slot.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.TransportError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4000))
		log.Printf("Upload of %s failed: %d %s", slot.FileID, resp.StatusCode, body)
		return &models.UpstreamError{Service: serviceName, Status: resp.StatusCode, Message: "file upload failed"}
	}

	return nil
}

// CompleteUpload shares an uploaded file into a channel, optionally in a thread
func (c *Client) CompleteUpload(ctx context.Context, teamID string, slot UploadSlot, title, channelID, threadTS string) error {
	api, err := c.api(ctx, teamID)
	if err != nil {
		return err
	}

	_, err = api.CompleteUploadExternalContext(ctx, slack.CompleteUploadExternalParameters{
		Files:           []slack.FileSummary{{ID: slot.FileID, Title: title}},
		Channel:         channelID,
		ThreadTimestamp: threadTS,
	})
	if err != nil {
		return fmt.Errorf("complete upload: %w", classify(err))
	}

	return nil
}

// OpenView opens a modal for the interaction that issued triggerID
func (c *Client) OpenView(ctx context.Context, teamID, triggerID string, view slack.ModalViewRequest) error {
	api, err := c.api(ctx, teamID)
	if err != nil {
		return err
	}

	if _, err := api.OpenViewContext(ctx, triggerID, view); err != nil {
		return fmt.Errorf("open view: %w", classify(err))
	}

	return nil
}

// Installation is the result of a completed OAuth install
type Installation struct {
	TeamID   string
	TeamName string
	BotToken string
}

// ExchangeOAuthCode trades an install code for the team's bot token
func (c *Client) ExchangeOAuthCode(ctx context.Context, clientID, clientSecret, code, redirectURL string) (Installation, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, c.httpClient, clientID, clientSecret, code, redirectURL)
	if err != nil {
		return Installation{}, fmt.Errorf("oauth exchange: %w", classify(err))
	}

	return Installation{
		TeamID:   resp.Team.ID,
		TeamName: resp.Team.Name,
		BotToken: resp.AccessToken,
	}, nil
}

func toMessage(channelID string, msg slack.Message) models.Message {
	return models.Message{
		ChannelID: channelID,
		Timestamp: msg.Timestamp,
		ThreadTS:  msg.ThreadTimestamp,
		User:      msg.User,
		Text:      msg.Text,
	}
}

func isAlreadyInChannel(err error) bool {
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		return slackErr.Err == "already_in_channel"
	}
	return err.Error() == "already_in_channel"
}

// classify maps slack-go errors onto the models error taxonomy
func classify(err error) error {
	var slackErr slack.SlackErrorResponse
	var statusErr slack.StatusCodeError
	var rateErr *slack.RateLimitedError
	var urlErr *url.Error

	switch {
	case errors.As(err, &slackErr):
		return &models.UpstreamError{Service: serviceName, Message: slackErr.Err}
	case errors.As(err, &statusErr):
		return &models.UpstreamError{Service: serviceName, Status: statusErr.Code, Message: statusErr.Status}
	case errors.As(err, &rateErr):
		return &models.UpstreamError{Service: serviceName, Status: http.StatusTooManyRequests, Message: "rate limited"}
	case errors.As(err, &urlErr):
		return &models.TransportError{Service: serviceName, Err: err}
	}
	return err
}
