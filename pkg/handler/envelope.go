package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/tidwall/gjson"

	"github.com/savaki/jonbot/pkg/models"
)

// TypeURLVerification is the handshake type accepted without a token
const TypeURLVerification = "url_verification"

const contentTypeForm = "application/x-www-form-urlencoded"

// Envelope is the decoded, verified body of one inbound request
type Envelope struct {
	// Fields holds the decoded top level fields of the effective body
	Fields map[string]any
	// Raw is the effective body as JSON
	Raw   []byte
	Token string
	Type  string
	// Verified is false only for a handshake accepted without a token
	Verified bool

	form url.Values
}

// Parse decodes body according to contentType and verifies its token
// against verificationToken. Form bodies are decoded as key/value pairs,
// everything else as JSON. A string "payload" field is decoded as JSON and
// replaces the envelope; this happens once, never recursively.
func Parse(body []byte, contentType, verificationToken string) (*Envelope, error) {
	env, err := decode(body, contentType)
	if err != nil {
		return nil, &models.ParseError{Err: err}
	}

	if env.Type == TypeURLVerification {
		return env, nil
	}
	if err := verify(env.Token, verificationToken); err != nil {
		return nil, err
	}
	env.Verified = true
	return env, nil
}

func decode(body []byte, contentType string) (*Envelope, error) {
	env := &Envelope{}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == contentTypeForm {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("decode form: %w", err)
		}
		env.form = form
		env.Fields = make(map[string]any, len(form))
		for key := range form {
			env.Fields[key] = form.Get(key)
		}
	} else {
		if err := json.Unmarshal(body, &env.Fields); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		if env.Fields == nil {
			return nil, errors.New("decode json: body is not an object")
		}
	}

	if payload, ok := env.Fields["payload"].(string); ok {
		var fields map[string]any
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if fields == nil {
			return nil, errors.New("decode payload: not an object")
		}
		env.Fields = fields
		env.Raw = []byte(payload)
		env.form = nil
	} else if env.form == nil {
		env.Raw = body
	} else {
		raw, err := json.Marshal(env.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
		env.Raw = raw
	}

	env.Token = env.String("token")
	env.Type = env.String("type")
	return env, nil
}

func verify(got, want string) error {
	if want == "" {
		return &models.AuthError{Reason: "no verification token configured"}
	}
	if got == "" {
		return &models.AuthError{Reason: "token missing"}
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return &models.AuthError{Reason: "token mismatch"}
	}
	return nil
}

// String returns a top level string field, or "" if absent
func (e *Envelope) String(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// path returns the string at a dotted path such as team.id, or "" if absent
func (e *Envelope) path(p string) string {
	v := gjson.GetBytes(e.Raw, p)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// TeamID returns team_id, then team.id, then user.team_id
func (e *Envelope) TeamID() string {
	if id := e.String("team_id"); id != "" {
		return id
	}
	if id := e.path("team.id"); id != "" {
		return id
	}
	return e.path("user.team_id")
}

// EventType returns event.type when present, else the envelope type
func (e *Envelope) EventType() string {
	if t := e.path("event.type"); t != "" {
		return t
	}
	return e.Type
}

// Challenge returns the handshake challenge
func (e *Envelope) Challenge() string {
	return e.String("challenge")
}

// Command returns the envelope as a slash command submission
func (e *Envelope) Command() SlashCommand {
	return SlashCommand{
		SlashCommand: slack.SlashCommand{
			Token:       e.Token,
			TeamID:      e.String("team_id"),
			TeamDomain:  e.String("team_domain"),
			ChannelID:   e.String("channel_id"),
			ChannelName: e.String("channel_name"),
			UserID:      e.String("user_id"),
			UserName:    e.String("user_name"),
			Command:     e.String("command"),
			Text:        e.String("text"),
			ResponseURL: e.String("response_url"),
			TriggerID:   e.String("trigger_id"),
		},
		ThreadTS: e.String("thread_ts"),
	}
}

// SlashCommand is a slash command submission plus the thread it was sent from
type SlashCommand struct {
	slack.SlashCommand
	ThreadTS string
}

// Interaction decodes the envelope as an interactive payload
func (e *Envelope) Interaction() (slack.InteractionCallback, error) {
	var callback slack.InteractionCallback
	if err := json.Unmarshal(e.Raw, &callback); err != nil {
		return callback, &models.ParseError{Err: fmt.Errorf("decode interaction: %w", err)}
	}
	return callback, nil
}

// Event decodes the envelope as an Events API callback
func (e *Envelope) Event() (slackevents.EventsAPIEvent, error) {
	event, err := slackevents.ParseEvent(json.RawMessage(e.Raw), slackevents.OptionNoVerifyToken())
	if err != nil {
		return event, &models.ParseError{Err: fmt.Errorf("decode event: %w", err)}
	}
	return event, nil
}

// commandText returns the trimmed command text
func (e *Envelope) commandText() string {
	return strings.TrimSpace(e.String("text"))
}
