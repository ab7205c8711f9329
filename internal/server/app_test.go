package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/config"
	"tgrelay/pkg/gateway"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

// scriptedGateway returns its events on the first poll and then blocks.
type scriptedGateway struct {
	mu     sync.Mutex
	events []gateway.Event
	polled bool
	sent   []sentMessage
	nextID int64
}

func (g *scriptedGateway) Poll(ctx context.Context) ([]gateway.Event, error) {
	g.mu.Lock()
	if !g.polled {
		g.polled = true
		ev := g.events
		g.mu.Unlock()
		return ev, nil
	}
	g.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (g *scriptedGateway) Send(ctx context.Context, chatID int64, text string, opts gateway.SendOptions) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Text: text})
	return 1000 + g.nextID, nil
}

func (g *scriptedGateway) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return nil
}

func (g *scriptedGateway) AnswerInteraction(ctx context.Context, interactionID, notice string) error {
	return nil
}

func (g *scriptedGateway) sentTo(chatID int64) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, m := range g.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Telegram.Token = "123:abc"
	cfg.AdminID = 42
	cfg.Bans.Path = filepath.Join(t.TempDir(), "bans", "banned.txt")
	cfg.Bans.Watch = false
	cfg.Relay.RetryDelay = time.Millisecond
	cfg.Relay.ShutdownGrace = time.Second
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminID = 0

	_, err := New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop(), Gateway: &scriptedGateway{}})
	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "admin_id", cfgErr.Field)
}

func TestNew_GetMeRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/getMe" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"username":"relay_bot"}}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Telegram.BaseURL = srv.URL
	cfg.Relay.MaxRetries = 3

	app, err := New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer app.Close()
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_GetMeStopsOnPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Telegram.BaseURL = srv.URL
	cfg.Relay.MaxRetries = 3

	_, err := New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.True(t, gateway.IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNew_GetMeGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Telegram.BaseURL = srv.URL
	cfg.Relay.MaxRetries = 2

	_, err := New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.True(t, gateway.IsRetryable(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_LoadsFileBans(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Bans.Path), 0755))
	require.NoError(t, os.WriteFile(cfg.Bans.Path, []byte("5\n3\n"), 0644))

	app, err := New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop(), Gateway: &scriptedGateway{}})
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, []int64{3, 5}, app.Registry().List())
}

func TestNew_SQLiteBans(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bans.Driver = "sqlite"
	cfg.Bans.DBPath = filepath.Join(t.TempDir(), "data.db")

	app, err := New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop(), Gateway: &scriptedGateway{}})
	require.NoError(t, err)
	require.NoError(t, app.Registry().Ban(9))
	require.NoError(t, app.Close())

	app, err = New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop(), Gateway: &scriptedGateway{}})
	require.NoError(t, err)
	defer app.Close()
	assert.True(t, app.Registry().IsBanned(9))
}

func TestRun_RelaysAndStops(t *testing.T) {
	cfg := testConfig(t)
	gw := &scriptedGateway{events: []gateway.Event{
		gateway.Message{
			ChatID:    7,
			From:      gateway.UserIdentity{ID: 7, DisplayName: "@seven"},
			Text:      "hello admin",
			MessageID: 1,
		},
	}}

	app, err := New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop(), Gateway: gw})
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	assert.Eventually(t, func() bool {
		for _, text := range gw.sentTo(42) {
			if strings.Contains(text, "hello admin") && strings.Contains(text, "@seven") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
