package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/chatrelay/internal/session"
)

// newMockOllamaServer serves NDJSON from handler and records the last request body.
func newMockOllamaServer(t *testing.T, got *ollamaRequest, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOllamaOpenSendsHistory(t *testing.T) {
	var got ollamaRequest
	server := newMockOllamaServer(t, &got, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("{\"message\":{\"content\":\"ab\"}}\n{\"done\":true}\n"))
	})

	o := NewOllama(OllamaConfig{URL: server.URL, Model: "llama3"}, server.Client())
	body, err := o.Open(context.Background(), []session.Turn{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
		{Role: session.RoleUser, Content: "again"},
	})
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "llama3", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, []ollamaMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "again"},
	}, got.Messages)

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	res := o.NewExtractor(nil).Feed(raw)
	assert.Equal(t, []string{"ab"}, res.Fragments)
	assert.True(t, res.Done)
}

func TestOllamaOpenRejectsMissingConfig(t *testing.T) {
	o := NewOllama(OllamaConfig{URL: "", Model: "llama3"}, http.DefaultClient)
	_, err := o.Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestOllamaOpenStatusError(t *testing.T) {
	server := newMockOllamaServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model \"nope\" not found"}`, http.StatusNotFound)
	})

	o := NewOllama(OllamaConfig{URL: server.URL, Model: "nope"}, server.Client())
	_, err := o.Open(context.Background(), nil)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.Code)
	assert.Contains(t, serr.Message(), "not found")
}

func TestDecodeOllamaFrame(t *testing.T) {
	text, done, err := decodeOllamaFrame([]byte(`{"model":"m","message":{"role":"assistant","content":"x"},"done":false}`))
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	assert.False(t, done)

	text, done, err = decodeOllamaFrame([]byte(`{"done":true,"total_duration":12}`))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.True(t, done)

	_, _, err = decodeOllamaFrame([]byte(`{"error":"out of memory"}`))
	assert.ErrorContains(t, err, "out of memory")

	_, _, err = decodeOllamaFrame([]byte(`{"message":{"content":"x"}}}`))
	assert.Error(t, err)
}

func TestOllamaExtractorSkipsGarbageLine(t *testing.T) {
	o := NewOllama(OllamaConfig{}, http.DefaultClient)
	var skipped int
	e := o.NewExtractor(func([]byte, error) { skipped++ })

	res := e.Feed([]byte("{\"message\":{\"content\":\"a\"}}}\n{\"message\":{\"content\":\"b\"}}\n"))
	assert.Equal(t, []string{"b"}, res.Fragments)
	assert.Equal(t, 1, skipped)
}
