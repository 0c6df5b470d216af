package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(registry *Registry) (*Router, *Tasks) {
	tasks := NewTasks(context.Background())
	return NewRouter(registry, testToken, tasks, ""), tasks
}

func postForm(t *testing.T, h http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func command(text string) url.Values {
	return url.Values{"token": {testToken}, "team_id": {"T1"}, "text": {text}}
}

func testRegistry(calls *[]string) *Registry {
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			*calls = append(*calls, name)
			return nil
		}
	}
	return NewRegistry(
		[]Command{
			{Name: "config", Description: "Configure jonbot settings", Run: record("config")},
			{Name: "generate", Description: "Generate an image from a text prompt", Run: record("generate")},
			{Name: "gen", Description: "Short for generate", Run: record("gen")},
			{Name: HelpCommand, Description: "List all commands", Run: helpCommand},
		},
		map[string]HandlerFunc{"block_actions": record("block_actions")},
		map[string]HandlerFunc{
			TypeURLVerification: urlVerification,
			"app_mention":       record("app_mention"),
		},
	)
}

func TestHelpListsCommands(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	rec := postForm(t, rt, "/command", command("help"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp commandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ephemeral", resp.ResponseType)
	assert.Equal(t,
		"/config - Configure jonbot settings\n"+
			"/generate - Generate an image from a text prompt\n"+
			"/gen - Short for generate\n"+
			"/help - List all commands\n",
		resp.Text)
}

func TestUnknownCommandIsHelp(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	help := postForm(t, rt, "/command", command("help"))
	unknown := postForm(t, rt, "/command", command("frobnicate the widgets"))

	assert.Equal(t, help.Code, unknown.Code)
	assert.Equal(t, help.Body.String(), unknown.Body.String())
	assert.Empty(t, calls)
}

func TestCommandPrefixOrder(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"generate cats", "generate"},
		{"gen cats", "gen"},
		{"  config  ", "config"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var calls []string
			rt, _ := newTestRouter(testRegistry(&calls))
			postForm(t, rt, "/command", command(tt.text))
			assert.Equal(t, []string{tt.want}, calls)
		})
	}
}

func TestFallbackAcknowledgmentWrittenOnce(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	rec := postForm(t, rt, "/command", command("generate cats"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "ok"))
}

func TestSecondWriteIsSuppressed(t *testing.T) {
	registry := NewRegistry([]Command{{
		Name: "twice",
		Run: func(ctx context.Context, req *Request) error {
			req.Text(http.StatusOK, "first")
			req.Text(http.StatusTeapot, "second")
			return nil
		},
	}}, nil, nil)
	rt, _ := newTestRouter(registry)

	rec := postForm(t, rt, "/command", command("twice"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "first", rec.Body.String())
}

func TestURLVerification(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	rec := postJSON(t, rt, "/event", `{"token":"stale","type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", rec.Body.String())
}

func TestRequestErrors(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	rec := postJSON(t, rt, "/event", `{"token":"wrong","type":"event_callback","event":{"type":"app_mention"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = postJSON(t, rt, "/event", `{"token":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, calls)
}

func TestUnverifiedHandshakeOnlyAnswersChallenge(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	tests := []struct {
		name string
		send func() *httptest.ResponseRecorder
	}{
		{"command", func() *httptest.ResponseRecorder {
			return postForm(t, rt, "/command", url.Values{
				"type":    {"url_verification"},
				"team_id": {"T-OTHER"},
				"text":    {"generate cats"},
			})
		}},
		{"interaction", func() *httptest.ResponseRecorder {
			return postForm(t, rt, "/interact", url.Values{"payload": {`{"type":"url_verification","team":{"id":"T-OTHER"}}`}})
		}},
		{"event with inner type", func() *httptest.ResponseRecorder {
			return postJSON(t, rt, "/event", `{"type":"url_verification","challenge":"c","event":{"type":"app_mention"}}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.send()
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
	assert.Empty(t, calls)

	rec := postJSON(t, rt, "/event", `{"type":"url_verification","challenge":"c"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventDispatchByInnerType(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	rec := postJSON(t, rt, "/event", `{"token":"verify-token","type":"event_callback","event":{"type":"app_mention"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"app_mention"}, calls)

	rec = postJSON(t, rt, "/event", `{"token":"verify-token","type":"event_callback","event":{"type":"member_joined_channel"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestUnmatchedInteraction(t *testing.T) {
	var calls []string
	rt, _ := newTestRouter(testRegistry(&calls))

	rec := postForm(t, rt, "/interact", url.Values{"payload": {`{"type":"shortcut","token":"verify-token"}`}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Empty(t, calls)

	postForm(t, rt, "/interact", url.Values{"payload": {`{"type":"block_actions","token":"verify-token"}`}})
	assert.Equal(t, []string{"block_actions"}, calls)
}

func TestHandlerErrorAndPanic(t *testing.T) {
	registry := NewRegistry([]Command{
		{Name: "fail", Run: func(ctx context.Context, req *Request) error { return errors.New("boom") }},
		{Name: "panic", Run: func(ctx context.Context, req *Request) error { panic("oops") }},
	}, nil, nil)
	rt, _ := newTestRouter(registry)

	rec := postForm(t, rt, "/command", command("fail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")

	rec = postForm(t, rt, "/command", command("panic"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAfterRunsOnceResponseIsWritten(t *testing.T) {
	var sawWritten atomic.Bool
	registry := NewRegistry([]Command{{
		Name: "bg",
		Run: func(ctx context.Context, req *Request) error {
			req.Text(http.StatusOK, "ack")
			req.After(func(ctx context.Context) {
				sawWritten.Store(req.Written())
			})
			return nil
		},
	}}, nil, nil)
	rt, tasks := newTestRouter(registry)

	rec := postForm(t, rt, "/command", command("bg"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tasks.Wait(ctx))
	assert.Equal(t, "ack", rec.Body.String())
	assert.True(t, sawWritten.Load())
}

func TestHealthz(t *testing.T) {
	tasks := NewTasks(context.Background())
	rt := NewRouter(NewRegistry(nil, nil, nil), testToken, tasks, "/jonbot")

	for _, path := range []string{"/jonbot/healthz", "/jonbot/", "/jonbot"} {
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := postForm(t, rt, "/jonbot/command", command("anything"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestTasksRecoverPanics(t *testing.T) {
	tasks := NewTasks(context.Background())
	var ran atomic.Bool
	tasks.Go(func(ctx context.Context) { panic("background") })
	tasks.Go(func(ctx context.Context) { ran.Store(true) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tasks.Wait(ctx))
	assert.True(t, ran.Load())
}
