package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/savaki/jonbot/pkg/models"
)

const maxBodyBytes = 1 << 20

type surface int

const (
	surfaceCommand surface = iota
	surfaceInteraction
	surfaceEvent
)

func (s surface) String() string {
	switch s {
	case surfaceCommand:
		return "command"
	case surfaceInteraction:
		return "interact"
	default:
		return "event"
	}
}

// Router serves the webhook endpoints and dispatches to the registry
type Router struct {
	registry          *Registry
	verificationToken string
	tasks             *Tasks
	mux               *mux.Router
	prefix            string
}

// NewRouter creates a router with the webhook and liveness routes mounted
// under prefix ("" or "/path")
func NewRouter(registry *Registry, verificationToken string, tasks *Tasks, prefix string) *Router {
	rt := &Router{
		registry:          registry,
		verificationToken: verificationToken,
		tasks:             tasks,
		mux:               mux.NewRouter(),
		prefix:            prefix,
	}

	rt.mux.HandleFunc(prefix+"/command", rt.dispatch(surfaceCommand)).Methods(http.MethodPost)
	rt.mux.HandleFunc(prefix+"/interact", rt.dispatch(surfaceInteraction)).Methods(http.MethodPost)
	rt.mux.HandleFunc(prefix+"/event", rt.dispatch(surfaceEvent)).Methods(http.MethodPost)
	rt.mux.HandleFunc(prefix+"/healthz", healthz).Methods(http.MethodGet)
	rt.mux.HandleFunc(prefix+"/", healthz).Methods(http.MethodGet)
	if prefix != "" {
		rt.mux.HandleFunc(prefix, healthz).Methods(http.MethodGet)
	}

	return rt
}

// HandleFunc mounts an additional GET route under the prefix
func (rt *Router) HandleFunc(path string, fn http.HandlerFunc) {
	rt.mux.HandleFunc(rt.prefix+path, fn).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (rt *Router) dispatch(kind surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := newResponse(w)

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			log.Printf("ERROR: read %s body: %v", kind, err)
			resp.write(http.StatusBadRequest, "text/plain; charset=utf-8", []byte("could not read request body"))
			return
		}

		env, err := Parse(body, r.Header.Get("Content-Type"), rt.verificationToken)
		if err != nil {
			writeRequestError(resp, kind, err)
			return
		}

		// an unverified handshake may only answer the challenge
		if !env.Verified && (kind != surfaceEvent || env.EventType() != TypeURLVerification) {
			writeRequestError(resp, kind, &models.AuthError{Reason: "unverified " + env.EventType() + " on " + kind.String()})
			return
		}

		req := newRequest(env, rt.registry, resp)
		rt.run(r, kind, req)

		// exactly one response per request
		if !resp.Written() {
			req.JSON(http.StatusOK, map[string]bool{"ok": true})
		}

		for _, task := range req.after {
			rt.tasks.Go(task)
		}
	}
}

// run looks up and invokes the handler. Handler errors and panics become a 500.
func (rt *Router) run(r *http.Request, kind surface, req *Request) {
	env := req.Envelope
	var handler HandlerFunc
	var key string

	switch kind {
	case surfaceCommand:
		key = env.commandText()
		cmd, matched, ok := rt.registry.MatchCommand(key)
		if !ok {
			log.Printf("No command matches %q and no help command is registered", truncate(key, 12))
			return
		}
		if !matched {
			log.Printf("Unhandled command name: %s...", truncate(key, 12))
		}
		handler, key = cmd.Run, cmd.Name
	case surfaceInteraction:
		key = env.Type
		h, ok := rt.registry.Interaction(key)
		if !ok {
			log.Printf("Unhandled interaction type: %s", key)
			return
		}
		handler = h
	case surfaceEvent:
		key = env.EventType()
		h, ok := rt.registry.Event(key)
		if !ok {
			log.Printf("Unhandled event type: %s", key)
			return
		}
		handler = h
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: %s handler %s panicked: %v", kind, key, p)
			req.Text(http.StatusInternalServerError, "internal error")
		}
	}()

	log.Printf("Dispatching %s %s for team %s", kind, key, env.TeamID())
	if err := handler(r.Context(), req); err != nil {
		log.Printf("ERROR: %s handler %s failed: %v", kind, key, err)
		req.Text(http.StatusInternalServerError, "internal error")
	}
}

// writeRequestError answers parse and auth failures with plain text
func writeRequestError(resp *Response, kind surface, err error) {
	var parseErr *models.ParseError
	var authErr *models.AuthError
	switch {
	case errors.As(err, &authErr):
		log.Printf("ERROR: rejected %s request: %v", kind, err)
		resp.write(http.StatusUnauthorized, "text/plain; charset=utf-8", []byte("invalid verification token"))
	case errors.As(err, &parseErr):
		log.Printf("ERROR: malformed %s request: %v", kind, err)
		resp.write(http.StatusBadRequest, "text/plain; charset=utf-8", []byte("malformed request body"))
	default:
		log.Printf("ERROR: %s request: %v", kind, err)
		resp.write(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("internal error"))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
