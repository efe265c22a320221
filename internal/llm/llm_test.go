package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseContinuations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want []domain.Continuation
	}{
		{
			name: "json array",
			raw:  `[{"content":"a","likelihood":0.7},{"content":"b","likelihood":0.4,"final":true}]`,
			max:  3,
			want: []domain.Continuation{{Content: "a", Likelihood: 0.7}, {Content: "b", Likelihood: 0.4, Final: true}},
		},
		{
			name: "fenced and truncated",
			raw:  "```json\n[{\"content\":\"a\",\"likelihood\":0.7},{\"content\":\"b\",\"likelihood\":0.4}]\n```",
			max:  1,
			want: []domain.Continuation{{Content: "a", Likelihood: 0.7}},
		},
		{
			name: "clamps and drops blanks",
			raw:  `[{"content":"  ","likelihood":0.9},{"content":"x","likelihood":3}]`,
			max:  2,
			want: []domain.Continuation{{Content: "x", Likelihood: 1}},
		},
		{
			name: "plain text is a final step",
			raw:  "Paris is the capital.",
			max:  1,
			want: []domain.Continuation{{Content: "Paris is the capital.", Likelihood: 0.5, Final: true}},
		},
		{
			name: "empty",
			raw:  "",
			max:  1,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseContinuations(tt.raw, tt.max)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseContinuations(`[{"content":`, 1)
	assert.Error(t, err)
}

func TestBuildContinuationPrompt(t *testing.T) {
	p := buildContinuationPrompt("Question: why?", []domain.ReasoningStep{{Content: "first", Likelihood: 0.5}}, 3)
	assert.Contains(t, p, "Question: why?")
	assert.Contains(t, p, "1. first (likelihood 0.50)")
	assert.Contains(t, p, "up to 3 distinct")

	assert.Contains(t, buildContinuationPrompt("q", nil, 0), "(none yet)")
}

func TestOpenAIClient_ProposeContinuation(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[{\"content\":\"step\",\"likelihood\":0.6,\"final\":true}]"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key")
	c.url = srv.URL

	out, err := c.ProposeContinuation(context.Background(), "prompt", nil, 2)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "step", out[0].Content)
	assert.True(t, out[0].Final)
	assert.Equal(t, chatModel, got.Model)
	assert.Equal(t, float32(0.8), got.Temperature)
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k")
	c.url = srv.URL

	_, err := c.ProposeContinuation(context.Background(), "prompt", nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropicClient_JoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"[{\"content\":\"a\","},{"type":"text","text":"\"likelihood\":0.9}]"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("k")
	c.url = srv.URL

	out, err := c.ProposeContinuation(context.Background(), "prompt", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Continuation{{Content: "a", Likelihood: 0.9}}, out)
}

func TestGeminiAndCerebrasClients(t *testing.T) {
	gem := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "g", r.Header.Get("x-goog-api-key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[{\"content\":\"g\",\"likelihood\":0.3}]"}]}}]}`))
	}))
	defer gem.Close()
	cer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[{\"content\":\"c\",\"likelihood\":0.4}]"}}]}`))
	}))
	defer cer.Close()

	g := NewGeminiClient("g")
	g.url = gem.URL
	out, err := g.ProposeContinuation(context.Background(), "p", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "g", out[0].Content)

	c := NewCerebrasClient("c")
	c.url = cer.URL
	out, err = c.ProposeContinuation(context.Background(), "p", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "c", out[0].Content)
}

func TestMockOracle(t *testing.T) {
	m := NewMockOracle()
	boom := errors.New("boom")
	m.Responses = [][]domain.Continuation{{{Content: "scripted", Likelihood: 0.3}}}
	m.Errors = []error{nil, boom}

	out, err := m.ProposeContinuation(context.Background(), "p", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "scripted", out[0].Content)

	_, err = m.ProposeContinuation(context.Background(), "p", nil, 1)
	assert.ErrorIs(t, err, boom)

	out, err = m.ProposeContinuation(context.Background(), "p", []domain.ReasoningStep{{Content: "x"}}, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[0].Final)
	assert.Greater(t, out[0].Likelihood, out[2].Likelihood)
	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, 3, m.Calls[2].MaxAlternatives)
}

func TestBreakerOracle_TripsAfterFailures(t *testing.T) {
	m := NewMockOracle()
	failure := errors.New("provider down")
	m.Errors = []error{failure, failure, failure, failure, failure}

	cfg := DefaultBreakerConfig()
	cfg.Timeout = time.Hour
	b := NewBreakerOracle(m, cfg, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.ProposeContinuation(context.Background(), "p", nil, 1)
		assert.ErrorIs(t, err, failure)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.ProposeContinuation(context.Background(), "p", nil, 1)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
	assert.Equal(t, 5, m.CallCount())
}

func TestBreakerOracle_IgnoresCancellation(t *testing.T) {
	b := NewBreakerOracle(NewMockOracle(), DefaultBreakerConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 10; i++ {
		_, err := b.ProposeContinuation(ctx, "p", nil, 1)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", b.State())
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ProviderOpenAI, "")
	assert.Error(t, err)

	oracle, err := NewClient(ProviderMock, "")
	require.NoError(t, err)
	assert.IsType(t, &MockOracle{}, oracle)

	_, err = NewClient("llama", "k")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown LLM provider"))
}

func TestOpenAIClient_RenderAnswer(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Paris.  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k")
	c.url = srv.URL

	answer, err := c.RenderAnswer(context.Background(), "Answer: capital of France?", []domain.ReasoningStep{{Content: "geography", Likelihood: 0.9}})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "plain text")
	assert.Contains(t, got.Messages[0].Content, "1. geography (likelihood 0.90)")
	assert.NotContains(t, got.Messages[0].Content, "JSON array")
	assert.Equal(t, float32(answerTemperature), got.Temperature)
}

// continuationOnly hides RenderAnswer from the wrapped oracle.
type continuationOnly struct {
	domain.ReasoningOracle
}

func TestBreakerOracle_RenderAnswer(t *testing.T) {
	m := NewMockOracle()
	m.Answer = "plain answer"
	b := NewBreakerOracle(m, DefaultBreakerConfig(), zap.NewNop())

	answer, err := b.RenderAnswer(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", answer)
	assert.Zero(t, m.Calls[0].MaxAlternatives)

	fallback := NewMockOracle()
	fallback.Responses = [][]domain.Continuation{{{Content: "  from a step ", Likelihood: 0.7}}}
	b = NewBreakerOracle(continuationOnly{fallback}, DefaultBreakerConfig(), zap.NewNop())
	answer, err = b.RenderAnswer(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "from a step", answer)
	assert.Equal(t, 1, fallback.Calls[0].MaxAlternatives)
}
