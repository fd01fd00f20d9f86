package advisor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday/internal/pkg/circuit"
)

type advisorFunc func(ctx context.Context, in Context, current string) (*Recommendation, error)

func (f advisorFunc) Recommend(ctx context.Context, in Context, current string) (*Recommendation, error) {
	return f(ctx, in, current)
}

func TestParseRecommendation(t *testing.T) {
	rec, err := ParseRecommendation("```json\n{\"recommended_strategy_id\":\"RSI_Reversion\",\"confidence\":0.8,\"reasoning\":\"range day\"}\n```")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "rsi_reversion", rec.StrategyID)
	assert.InDelta(t, 0.8, rec.Confidence, 1e-9)
	assert.Equal(t, "range day", rec.Reasoning)

	rec, err = ParseRecommendation(`{"recommended_strategy_id":"none","confidence":0.9}`)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = ParseRecommendation(`{"recommended_strategy_id":null,"confidence":0.1}`)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = ParseRecommendation(`{"recommended_strategy_id":"x","confidence":1.5}`)
	assert.Error(t, err)
	_, err = ParseRecommendation(`{"confidence":0.5}`)
	assert.Error(t, err)
	_, err = ParseRecommendation(`no idea`)
	assert.Error(t, err)
}

func TestGuardTimeout(t *testing.T) {
	slow := advisorFunc(func(ctx context.Context, _ Context, _ string) (*Recommendation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := NewGuard(slow, GuardConfig{Timeout: 10 * time.Millisecond, FailureThreshold: 5})
	rec, err := g.Recommend(context.Background(), Context{SessionID: "s1"}, "ema_crossover")
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGuardBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var calls int32
	fail := true
	inner := advisorFunc(func(context.Context, Context, string) (*Recommendation, error) {
		atomic.AddInt32(&calls, 1)
		if fail {
			return nil, errors.New("boom")
		}
		return &Recommendation{StrategyID: "range_breakout", Confidence: 0.9}, nil
	})
	g := NewGuard(inner, GuardConfig{FailureThreshold: 2, Cooldown: time.Minute, NowFn: func() time.Time { return now }})

	for i := 0; i < 2; i++ {
		_, err := g.Recommend(context.Background(), Context{}, "")
		require.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, circuit.StateOpen, g.Breaker().State())

	_, err := g.Recommend(context.Background(), Context{}, "")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	now = now.Add(time.Minute)
	fail = false
	rec, err := g.Recommend(context.Background(), Context{}, "")
	require.NoError(t, err)
	assert.Equal(t, "range_breakout", rec.StrategyID)
	assert.Equal(t, circuit.StateClosed, g.Breaker().State())
}

func TestGuardNilInner(t *testing.T) {
	g := NewGuard(nil, GuardConfig{})
	rec, err := g.Recommend(context.Background(), Context{}, "x")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestChatClientRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"model":"m1"`)
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"recommended_strategy_id\":\"ema_crossover\",\"confidence\":0.7}"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL+"/v1/chat/completions", "sk-test", "m1", time.Second, 2)
	var waited []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}
	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Contains(t, out, "ema_crossover")
	assert.Equal(t, []time.Duration{time.Second}, waited)

	a := NewLLMAdvisor(c)
	rec, err := a.Recommend(context.Background(), Context{SessionID: "s1", Available: []string{"ema_crossover"}}, "rsi_reversion")
	require.NoError(t, err)
	assert.Equal(t, "ema_crossover", rec.StrategyID)
}

func TestChatClientNonRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()
	c := NewChatClient(srv.URL, "", "m1", time.Second, 3)
	_, err := c.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestRetryWait(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryWait("3", 0))
	assert.Equal(t, 800*time.Millisecond, retryWait("", 0))
	assert.Equal(t, 1600*time.Millisecond, retryWait("", 1))
	assert.Equal(t, 8*time.Second, retryWait("", 6))
}

func TestMaskedHeaders(t *testing.T) {
	c := NewChatClient("", "sk-abcdef", "m", 0, 0)
	c.ExtraHeaders = map[string]string{"X-Api-Key": "secret-1234", "X-Trace": "t1"}
	h := c.maskedHeaders()
	assert.Equal(t, "Bearer ****cdef", h["Authorization"])
	assert.Equal(t, "****1234", h["X-Api-Key"])
	assert.Equal(t, "t1", h["X-Trace"])
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", c.endpoint())
}
