package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	o, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return o
}

func TestOpenAI_Complete(t *testing.T) {
	var gotModel, gotPrompt, gotAuth string
	o := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		gotPrompt = body.Messages[0].Content

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Olá!"},"finish_reason":"stop"}]}`))
	})

	out, err := o.Complete(context.Background(), "diga olá")
	require.NoError(t, err)
	assert.Equal(t, "Olá!", out)
	assert.Equal(t, DefaultOpenAIChatModel, gotModel)
	assert.Equal(t, "diga olá", gotPrompt)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestOpenAI_CompleteNoChoices(t *testing.T) {
	o := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})

	_, err := o.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAI_CompleteServerError(t *testing.T) {
	o := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	})

	_, err := o.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAI_Embed(t *testing.T) {
	o := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultOpenAIEmbedModel, body.Model)
		assert.Equal(t, []string{"olá"}, body.Input)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],"model":"text-embedding-3-small"}`))
	})

	vec, err := o.Embed(context.Background(), "olá")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vec)
}

func TestNewOpenAI_RequiresKeyOrBaseURL(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)

	_, err = NewOpenAI(OpenAIConfig{BaseURL: "http://localhost:8000/v1"})
	assert.NoError(t, err)
}

func TestOllama_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var body ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m1", body.Model)
		assert.False(t, body.Stream)
		require.Len(t, body.Messages, 1)
		json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: "resposta: " + body.Messages[0].Content}})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL + "/", ChatModel: "m1"})
	out, err := o.Complete(context.Background(), "oi")
	require.NoError(t, err)
	assert.Equal(t, "resposta: oi", out)
}

func TestOllama_StatusErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL})
	_, err := o.Complete(context.Background(), "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer srv.Close()

	vec, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "oi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestOllama_EmbedEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	_, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "oi")
	assert.Error(t, err)
}

func tagsHandler(names ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp struct {
			Models []map[string]string `json:"models"`
		}
		for _, n := range names {
			resp.Models = append(resp.Models, map[string]string{"name": n})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestOllama_IsRunningAndHasModel(t *testing.T) {
	srv := httptest.NewServer(tagsHandler("llama3.2:latest", "nomic-embed-text:latest"))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL})
	assert.True(t, o.IsRunning(context.Background()))
	assert.True(t, o.HasModel(context.Background(), "llama3.2"))
	assert.True(t, o.HasModel(context.Background(), "nomic-embed-text:latest"))
	assert.False(t, o.HasModel(context.Background(), "mistral"))
}

func TestOllama_IsRunningDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	assert.False(t, NewOllama(OllamaConfig{BaseURL: srv.URL}).IsRunning(context.Background()))
}

func TestOllama_EnsureReadyPullsMissing(t *testing.T) {
	var pulled atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", tagsHandler("llama3.2:latest"))
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		pulled.Store(body.Name)
		w.Write([]byte(`{"status":"downloading","total":100,"completed":50}` + "\n" + `{"status":"success"}` + "\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	o := NewOllama(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, o.EnsureReady(context.Background(), &out))

	assert.Equal(t, DefaultOllamaEmbedModel, pulled.Load())
	assert.Contains(t, out.String(), "downloading 50%")
	assert.Equal(t, 2, strings.Count(out.String(), ": ready"))
}

func TestOllama_EnsureReadyNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := NewOllama(OllamaConfig{BaseURL: srv.URL}).EnsureReady(context.Background(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(64)
	a1, err := h.Embed(context.Background(), "olá mundo")
	require.NoError(t, err)
	a2, _ := h.Embed(context.Background(), "olá mundo")
	b, _ := h.Embed(context.Background(), "outro texto")

	require.Len(t, a1, 64)
	assert.Equal(t, a1, a2, "same text must give the same vector")
	assert.NotEqual(t, a1, b)
	for _, v := range a1 {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.Less(t, v, float32(1))
	}
}

func TestCachedEmbedder(t *testing.T) {
	me := &mockEmbedder{embedFn: func(_ context.Context, text string) ([]float32, error) {
		if text == "fail" {
			return nil, errors.New("down")
		}
		return []float32{float32(len(text))}, nil
	}}
	c, err := NewCachedEmbedder(me, 2)
	require.NoError(t, err)
	ctx := context.Background()

	v1, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	v1[0] = 99 // mutating the result must not poison the cache
	v2, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v2)
	assert.Equal(t, 1, me.calls)

	_, err = c.Embed(ctx, "fail")
	require.Error(t, err)
	_, err = c.Embed(ctx, "fail")
	require.Error(t, err)
	assert.Equal(t, 3, me.calls, "errors are not cached")

	c.Embed(ctx, "d")
	c.Embed(ctx, "ef")
	assert.Equal(t, 2, c.Len())
	c.Embed(ctx, "abc")
	assert.Equal(t, 6, me.calls, "evicted entry is fetched again")
}

func TestNewCachedEmbedder_InvalidSize(t *testing.T) {
	_, err := NewCachedEmbedder(NewHashEmbedder(4), 0)
	assert.Error(t, err)
}
