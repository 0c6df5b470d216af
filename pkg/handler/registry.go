package handler

import (
	"context"
	"strings"
)

// HelpCommand is the command used when no other command matches
const HelpCommand = "help"

// HandlerFunc handles one inbound request. It may write the response
// through req; if it does not, an {"ok":true} acknowledgment is written.
type HandlerFunc func(ctx context.Context, req *Request) error

// Command is a named slash command subcommand
type Command struct {
	Name        string
	Description string
	Run         HandlerFunc
}

// Registry holds the three dispatch tables. It is built once and never
// modified; accessors return copies.
type Registry struct {
	commands     []Command
	interactions map[string]HandlerFunc
	events       map[string]HandlerFunc
}

// NewRegistry creates a registry. Command order is significant: the first
// command whose name prefixes the text wins, so longer names must come
// before shorter names they start with.
func NewRegistry(commands []Command, interactions, events map[string]HandlerFunc) *Registry {
	r := &Registry{
		commands:     append([]Command(nil), commands...),
		interactions: make(map[string]HandlerFunc, len(interactions)),
		events:       make(map[string]HandlerFunc, len(events)),
	}
	for k, v := range interactions {
		r.interactions[k] = v
	}
	for k, v := range events {
		r.events[k] = v
	}
	return r
}

// Commands returns the commands in registration order
func (r *Registry) Commands() []Command {
	return append([]Command(nil), r.commands...)
}

// MatchCommand returns the first command whose name prefixes text, falling
// back to help. ok is false only when neither exists.
func (r *Registry) MatchCommand(text string) (cmd Command, matched bool, ok bool) {
	text = strings.TrimSpace(text)
	for _, c := range r.commands {
		if strings.HasPrefix(text, c.Name) {
			return c, true, true
		}
	}
	for _, c := range r.commands {
		if c.Name == HelpCommand {
			return c, false, true
		}
	}
	return Command{}, false, false
}

// Interaction returns the handler for an interaction type
func (r *Registry) Interaction(interactionType string) (HandlerFunc, bool) {
	h, ok := r.interactions[interactionType]
	return h, ok
}

// Event returns the handler for an event type
func (r *Registry) Event(eventType string) (HandlerFunc, bool) {
	h, ok := r.events[eventType]
	return h, ok
}
