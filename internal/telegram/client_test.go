package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/pkg/gateway"
)

type apiCall struct {
	Method string
	Body   map[string]any
}

type fakeAPI struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []apiCall
	routes map[string]func(body map[string]any) (int, string)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{t: t, routes: map[string]func(map[string]any) (int, string){}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "botTEST" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		return
	}
	method := parts[1]

	body := map[string]any{}
	raw, _ := io.ReadAll(r.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Body: body})
	route := f.routes[method]
	f.mu.Unlock()

	status, resp := http.StatusOK, `{"ok":true,"result":true}`
	if route != nil {
		status, resp = route(body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}

func (f *fakeAPI) lastCall(method string) apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i]
		}
	}
	f.t.Fatalf("no %s call", method)
	return apiCall{}
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{Token: "TEST", BaseURL: srv.URL, PollTimeout: time.Second}, zerolog.Nop())
}

func TestClient_GetMe(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.routes["getMe"] = func(map[string]any) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"id":99,"is_bot":true,"username":"relay_bot"}}`
	}

	info, err := newTestClient(srv).GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BotInfo{ID: 99, Username: "relay_bot"}, info)
}

func TestClient_GetMe_BadToken(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.routes["getMe"] = func(map[string]any) (int, string) {
		return http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`
	}

	_, err := newTestClient(srv).GetMe(context.Background())
	require.Error(t, err)
	assert.True(t, gateway.IsPermanent(err))
	assert.NotContains(t, err.Error(), "TEST", "token must not leak into errors")
}

func TestClient_SendWithControls(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.routes["sendMessage"] = func(map[string]any) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":555,"chat":{"id":1}}}`
	}

	id, err := newTestClient(srv).Send(context.Background(), 1, "hello", gateway.SendOptions{
		Controls: []gateway.Control{{Label: "OK", Data: "accept_7"}, {Label: "No", Data: "reject_7"}},
		ReplyTo:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)

	call := api.lastCall("sendMessage")
	assert.Equal(t, float64(1), call.Body["chat_id"])
	assert.Equal(t, "hello", call.Body["text"])
	assert.Equal(t, float64(3), call.Body["reply_to_message_id"])
	assert.NotContains(t, call.Body, "parse_mode")

	markup := call.Body["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].([]any)
	require.Len(t, row, 2)
	assert.Equal(t, "accept_7", row[0].(map[string]any)["callback_data"])
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"blocked", http.StatusForbidden, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, true},
		{"chat not found", http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, true},
		{"rate limited", http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`, false},
		{"server error", http.StatusBadGateway, `bad gateway`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			api.routes["sendMessage"] = func(map[string]any) (int, string) { return tt.status, tt.body }

			_, err := newTestClient(srv).Send(context.Background(), 1, "x", gateway.SendOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, gateway.IsPermanent(err))
			assert.Equal(t, !tt.permanent, gateway.IsRetryable(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestClient_EditAndAnswer(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newTestClient(srv)

	require.NoError(t, c.EditText(context.Background(), 1, 555, "updated"))
	edit := api.lastCall("editMessageText")
	assert.Equal(t, float64(555), edit.Body["message_id"])
	assert.Equal(t, "updated", edit.Body["text"])

	require.NoError(t, c.AnswerInteraction(context.Background(), "cb-1", "Done"))
	answer := api.lastCall("answerCallbackQuery")
	assert.Equal(t, "cb-1", answer.Body["callback_query_id"])
	assert.Equal(t, "Done", answer.Body["text"])
}

func TestClient_EditMissingMessageIsPermanent(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.routes["editMessageText"] = func(map[string]any) (int, string) {
		return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`
	}

	err := newTestClient(srv).EditText(context.Background(), 1, 2, "x")
	assert.True(t, gateway.IsPermanent(err))
}

const updatesBody = `{"ok":true,"result":[
 {"update_id":10,"message":{"message_id":1,"chat":{"id":42,"type":"private"},"from":{"id":42,"first_name":"Alice"},"text":"/req need help"}},
 {"update_id":11,"message":{"message_id":2,"chat":{"id":42},"from":{"id":42,"username":"alice"},"text":"hello"}},
 {"update_id":12,"message":{"message_id":3,"chat":{"id":1},"from":{"id":1,"first_name":"Admin"},"text":"hi","reply_to_message":{"message_id":900}}},
 {"update_id":13,"callback_query":{"id":"cb-9","from":{"id":1},"data":"accept_1","message":{"message_id":900,"chat":{"id":1},"text":"New request"}}},
 {"update_id":14,"message":{"message_id":4,"chat":{"id":42},"from":{"id":7,"is_bot":true},"text":"bot noise"}},
 {"update_id":15,"message":{"message_id":5,"chat":{"id":42},"from":{"id":42}}}
]}`

func TestClient_Poll(t *testing.T) {
	api, srv := newFakeAPI(t)
	first := true
	api.routes["getUpdates"] = func(body map[string]any) (int, string) {
		if first {
			first = false
			return http.StatusOK, updatesBody
		}
		return http.StatusOK, `{"ok":true,"result":[]}`
	}
	c := newTestClient(srv)

	events, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)

	cmd, ok := events[0].(gateway.Command)
	require.True(t, ok)
	assert.Equal(t, "req", cmd.Name)
	assert.Equal(t, "need help", cmd.Args)
	assert.Equal(t, gateway.UserIdentity{ID: 42, DisplayName: "Alice"}, cmd.From)

	msg := events[1].(gateway.Message)
	assert.Equal(t, "@alice", msg.From.DisplayName)
	assert.False(t, msg.IsReply())

	reply := events[2].(gateway.Message)
	assert.Equal(t, int64(900), reply.ReplyToMessageID)

	in := events[3].(gateway.Interaction)
	assert.Equal(t, "cb-9", in.ID)
	assert.Equal(t, int64(1), in.ChatID)
	assert.Equal(t, int64(900), in.OriginatingMessageID)
	assert.Equal(t, "New request", in.OriginatingMessageText)
	assert.Equal(t, "accept", in.Action())

	// second poll confirms everything up to update 15
	events, err = c.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, float64(16), api.lastCall("getUpdates").Body["offset"])
}

func TestClient_PollCancelled(t *testing.T) {
	api, srv := newFakeAPI(t)
	release := make(chan struct{})
	defer close(release)
	api.routes["getUpdates"] = func(map[string]any) (int, string) {
		<-release
		return http.StatusOK, `{"ok":true,"result":[]}`
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(srv).Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
