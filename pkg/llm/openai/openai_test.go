package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browsary/pkg/llm"
)

func sseServer(t *testing.T, lines []string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			io.WriteString(w, line+"\n\n")
		}
	}))
}

func TestProvider_Complete(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string

	server := sseServer(t, []string{
		`: keep-alive`,
		`data: {"choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"<tool><tool_name>url</tool_name>"},"finish_reason":null}]}`,
		`data: not json`,
		`data: {"choices":[{"index":0,"delta":{"content":"<arguments></arguments></tool>"},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	}, func(r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	})
	defer server.Close()

	p, err := NewProvider("test-key", WithBaseURL(server.URL+"/"), WithModel("gpt-test"))
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), []*llm.Message{
		llm.NewSystemMessage("You drive a browser."),
		llm.NewUserMessage("What is the URL?"),
	})
	require.NoError(t, err)

	assert.Equal(t, llm.RoleAssistant, reply.Role)
	assert.Equal(t, "<tool><tool_name>url</tool_name><arguments></arguments></tool>", reply.Content)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "gpt-test", body.Model)
	assert.True(t, body.Stream)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "You drive a browser.", body.Messages[0].Content)
	assert.Equal(t, "user", body.Messages[1].Role)
}

func TestProvider_StreamCompletion(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: [DONE]`,
	}, nil)
	defer server.Close()

	p, err := NewProvider("k", WithBaseURL(server.URL))
	require.NoError(t, err)

	stream, err := p.StreamCompletion(context.Background(), []*llm.Message{llm.NewUserMessage("hi")})
	require.NoError(t, err)

	var got []*llm.StreamChunk
	for chunk := range stream {
		got = append(got, chunk)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "assistant", got[0].Role)
	assert.Equal(t, "Hel", got[0].Content)
	assert.Equal(t, "lo", got[1].Content)
	assert.Empty(t, got[1].Role)
	assert.True(t, got[2].Finished)
}

func TestProvider_StreamError(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"error":{"message":"rate limited"}}`,
	}, nil)
	defer server.Close()

	p, err := NewProvider("k", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestProvider_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	p, err := NewProvider("k", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*llm.Message{llm.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestNewProvider_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1/")
	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.GetModel())
	assert.Equal(t, "http://localhost:9999/v1", p.GetBaseURL())
}
