package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 100, cfg.AsyncQueueSize)
}

func TestClientSendSync(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled:    true,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventVersionCreated}, Enabled: true},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	event := Event{Event: EventVersionCreated, ProjectID: "pr1", VersionID: "v1", Name: "chapter one"}
	require.NoError(t, client.Send(event, false))

	require.NotNil(t, received)
	assert.Equal(t, string(EventVersionCreated), received["event"])
}

func TestClientSendWithSignature(t *testing.T) {
	var receivedSignature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSignature = r.Header.Get("X-Taleforge-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled:    true,
		MaxRetries: 1,
		Hooks: []HookConfig{
			{URL: server.URL, Secret: "test-secret-key", Events: []EventType{EventVersionCreated}, Enabled: true},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	require.NoError(t, client.Send(Event{Event: EventVersionCreated, ProjectID: "pr1"}, false))

	require.NotEmpty(t, receivedSignature)
	assert.Equal(t, "sha256=", receivedSignature[:7])
}

func TestClientSendAsync(t *testing.T) {
	calls := make(chan bool, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled:        true,
		MaxRetries:     1,
		AsyncQueueSize: 10,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventVersionCreated}, Enabled: true},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	require.NoError(t, client.Send(Event{Event: EventVersionCreated}, true))

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Error("async webhook not received within timeout")
	}
}

func TestClientRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled:    true,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventVersionCreated}, Enabled: true},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	start := time.Now()
	err := client.Send(Event{Event: EventVersionCreated}, false)
	duration := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, duration, 20*time.Millisecond)
}

func TestClientDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled: false,
		Hooks:   []HookConfig{{URL: server.URL, Events: []EventType{EventVersionCreated}}},
	}

	client := NewClient(cfg)
	defer client.Close()

	require.NoError(t, client.Send(Event{Event: EventVersionCreated}, false))
	assert.False(t, called, "webhook should not have been called when disabled")
}

func TestClientWildcardEvent(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled: true,
		Hooks:   []HookConfig{{URL: server.URL, Events: []EventType{"*"}, Enabled: true}},
	}

	client := NewClient(cfg)
	defer client.Close()

	for _, event := range []EventType{EventVersionCreated, EventRunStatus, EventForkComplete} {
		called = false
		require.NoError(t, client.Send(Event{Event: event}, false))
		assert.True(t, called, "wildcard hook not called for event %s", event)
	}
}

func TestClientEventFiltering(t *testing.T) {
	var receivedEventType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		receivedEventType, _ = payload["event"].(string)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled: true,
		Hooks:   []HookConfig{{URL: server.URL, Events: []EventType{EventVersionCreated}, Enabled: true}},
	}

	client := NewClient(cfg)
	defer client.Close()

	receivedEventType = ""
	client.Send(Event{Event: EventVersionCreated}, false)
	assert.Equal(t, string(EventVersionCreated), receivedEventType)

	receivedEventType = ""
	client.Send(Event{Event: EventRunStatus}, false)
	assert.NotEqual(t, string(EventRunStatus), receivedEventType)
}

func TestConvenienceMethods(t *testing.T) {
	var received Event

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled: true,
		Hooks:   []HookConfig{{URL: server.URL, Events: []EventType{"*"}, Enabled: true}},
	}

	client := NewClient(cfg)
	defer client.Close()

	require.NoError(t, client.SendVersionCreated("pr1", "v1", "chapter one"))
	assert.Equal(t, EventVersionCreated, received.Event)

	require.NoError(t, client.SendVersionRestored("pr1", "v1"))
	assert.Equal(t, EventVersionRestored, received.Event)

	require.NoError(t, client.SendForkComplete("pr1", "pr2", 3))
	assert.Equal(t, EventForkComplete, received.Event)
	assert.NotNil(t, received.Metadata)
}

func TestClientConnectionError(t *testing.T) {
	cfg := &Config{
		Enabled:    true,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
		Hooks: []HookConfig{
			{URL: "http://invalid.local:9999", Events: []EventType{EventVersionCreated}, Enabled: true},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	err := client.Send(Event{Event: EventVersionCreated}, false)
	assert.Error(t, err)
}

func TestClientGracefulShutdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled:        true,
		MaxRetries:     0,
		AsyncQueueSize: 5,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventVersionCreated}, Enabled: true},
		},
	}

	client := NewClient(cfg)

	for i := 0; i < 3; i++ {
		client.Send(Event{Event: EventVersionCreated}, true)
	}

	start := time.Now()
	err := client.Close()
	duration := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, duration, 300*time.Millisecond)
}

func TestClientQueueFull(t *testing.T) {
	cfg := &Config{
		Enabled:        true,
		MaxRetries:     0,
		AsyncQueueSize: 2,
		Hooks: []HookConfig{
			{URL: "http://slow.example.com", Events: []EventType{EventVersionCreated}, Enabled: true},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	for i := 0; i < 10; i++ {
		client.Send(Event{Event: EventVersionCreated}, true)
	}

	done := make(chan bool)
	go func() {
		client.Send(Event{Event: EventVersionCreated}, true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Send blocked when queue full")
	}
}

func TestHookEnabledDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Enabled: true,
		Hooks: []HookConfig{
			{URL: server.URL, Events: []EventType{EventVersionCreated}, Enabled: false},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	require.NoError(t, client.Send(Event{Event: EventVersionCreated}, false))
	assert.False(t, called, "disabled hook should not have been called")
}
