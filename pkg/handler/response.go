package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
)

// Response writes at most one HTTP response. Later writes are dropped.
type Response struct {
	w       http.ResponseWriter
	mu      sync.Mutex
	written bool
}

func newResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// Written reports whether a response has been written
func (r *Response) Written() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

func (r *Response) write(status int, contentType string, body []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.written {
		log.Printf("Warning: response already written, dropping %d response", status)
		return false
	}
	r.written = true

	r.w.Header().Set("Content-Type", contentType)
	r.w.WriteHeader(status)
	if _, err := r.w.Write(body); err != nil {
		log.Printf("Warning: failed to write response: %v", err)
	}
	return true
}

// Request is what a handler sees: the envelope, the dispatch tables and the
// response. Tasks registered with After run once the response is written.
type Request struct {
	Envelope *Envelope
	Registry *Registry

	resp  *Response
	after []func(ctx context.Context)
}

func newRequest(env *Envelope, registry *Registry, resp *Response) *Request {
	return &Request{
		Envelope: env,
		Registry: registry,
		resp:     resp,
	}
}

// JSON writes v as a JSON response
func (r *Request) JSON(status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("ERROR: marshal response: %v", err)
		r.resp.write(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("internal error"))
		return
	}
	r.resp.write(status, "application/json", body)
}

// Text writes a plain text response
func (r *Request) Text(status int, text string) {
	r.resp.write(status, "text/plain; charset=utf-8", []byte(text))
}

// Written reports whether the handler has written a response
func (r *Request) Written() bool {
	return r.resp.Written()
}

// After schedules fn to run in the background once the response is
// written. fn must not use the request after it returns.
func (r *Request) After(fn func(ctx context.Context)) {
	r.after = append(r.after, fn)
}
