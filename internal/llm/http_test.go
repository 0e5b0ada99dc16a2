package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answerServer records the last request body and replies with status/body.
func answerServer(t *testing.T, status int, body string, got *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if got != nil {
			*got = data
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatSendsSelectedFiles(t *testing.T) {
	var body []byte
	srv := answerServer(t, http.StatusOK, `{"reply":"ok"}`, &body)

	_, err := NewHTTPClient(srv.URL, time.Second).Chat(context.Background(), ChatRequest{
		Message:       "hi",
		SelectedFiles: []string{"a.txt"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi","selected_files":["a.txt"]}`, string(body))
}

func TestChatOmitsEmptySelectedFiles(t *testing.T) {
	for name, files := range map[string][]string{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			var body []byte
			srv := answerServer(t, http.StatusOK, `{}`, &body)

			_, err := NewHTTPClient(srv.URL, 0).Chat(context.Background(), ChatRequest{Message: "hello", SelectedFiles: files})
			require.NoError(t, err)
			assert.JSONEq(t, `{"message":"hello"}`, string(body))
		})
	}
}

func TestChatDecodesRAGMetadata(t *testing.T) {
	srv := answerServer(t, http.StatusOK, `{"reply":"hi there","used_rag":true,"retrieved_chunks":3,"sources":["doc1","doc2"]}`, nil)

	ans, err := NewHTTPClient(srv.URL, time.Second).Chat(context.Background(), ChatRequest{Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, &Answer{Reply: "hi there", UsedRAG: true, RetrievedChunks: 3, Sources: []string{"doc1", "doc2"}}, ans)
}

func TestChatAppliesFallbacks(t *testing.T) {
	for name, body := range map[string]string{
		"empty object": `{}`,
		"empty reply":  `{"reply":"","sources":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := answerServer(t, http.StatusOK, body, nil)

			ans, err := NewHTTPClient(srv.URL, time.Second).Chat(context.Background(), ChatRequest{Message: "q"})
			require.NoError(t, err)
			assert.Equal(t, NoResponseReply, ans.Reply)
			assert.False(t, ans.UsedRAG)
			assert.Zero(t, ans.RetrievedChunks)
			assert.NotNil(t, ans.Sources)
			assert.Empty(t, ans.Sources)
		})
	}
}

func TestChatRejectsNullDocument(t *testing.T) {
	srv := answerServer(t, http.StatusOK, `null`, nil)

	ans, err := NewHTTPClient(srv.URL, time.Second).Chat(context.Background(), ChatRequest{Message: "q"})
	assert.Nil(t, ans)
	assert.ErrorContains(t, err, "null document")
}

func TestChatRejectsNonJSONBody(t *testing.T) {
	srv := answerServer(t, http.StatusOK, `<html>oops</html>`, nil)

	_, err := NewHTTPClient(srv.URL, time.Second).Chat(context.Background(), ChatRequest{Message: "q"})
	assert.ErrorContains(t, err, "decode response")
}

func TestChatReturnsAPIErrorOnBadStatus(t *testing.T) {
	srv := answerServer(t, http.StatusBadRequest, `{"error":"Please provide a message"}`, nil)

	_, err := NewHTTPClient(srv.URL, time.Second).Chat(context.Background(), ChatRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Please provide a message")
}

func TestChatConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second).Chat(context.Background(), ChatRequest{Message: "q"})
	assert.ErrorContains(t, err, "http request")
}

func TestChatTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	start := time.Now()
	_, err := NewHTTPClient(srv.URL, 50*time.Millisecond).Chat(context.Background(), ChatRequest{Message: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSetEndpointRedirectsLaterRequests(t *testing.T) {
	first := answerServer(t, http.StatusOK, `{"reply":"first"}`, nil)
	second := answerServer(t, http.StatusOK, `{"reply":"second"}`, nil)

	c := NewHTTPClient(first.URL, time.Second)
	ans, err := c.Chat(context.Background(), ChatRequest{Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, "first", ans.Reply)

	c.SetEndpoint(second.URL, 2*time.Second)
	url, timeout := c.Endpoint()
	assert.Equal(t, second.URL, url)
	assert.Equal(t, 2*time.Second, timeout)

	ans, err = c.Chat(context.Background(), ChatRequest{Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, "second", ans.Reply)
}

func TestChatRequestEncoding(t *testing.T) {
	data, err := json.Marshal(ChatRequest{Message: "hi", SelectedFiles: []string{"a.txt"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi","selected_files":["a.txt"]}`, string(data))
}
