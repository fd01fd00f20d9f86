package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"intraday/internal/logger"
)

// ChatClient 兼容 OpenAI / DeepSeek / Qwen 的 /chat/completions 接口。
type ChatClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	Timeout      time.Duration
	MaxRetries   int
	ExtraHeaders map[string]string

	httpc *http.Client
	sleep func(ctx context.Context, d time.Duration) error
}

func NewChatClient(baseURL, apiKey, model string, timeout time.Duration, maxRetries int) *ChatClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ChatClient{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       model,
		Temperature: 0.2,
		Timeout:     timeout,
		MaxRetries:  maxRetries,
		httpc:       &http.Client{Timeout: timeout},
		sleep:       sleepCtx,
	}
}

func (c *ChatClient) endpoint() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

// Complete 发送一次对话请求，429/5xx 时按 Retry-After 或指数退避重试。
func (c *ChatClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	body, err := json.Marshal(map[string]any{
		"model":       c.Model,
		"messages":    messages,
		"temperature": c.Temperature,
	})
	if err != nil {
		return "", err
	}
	url := c.endpoint()
	logger.Debugf("Advisor: POST %s headers=%v", url, c.maskedHeaders())

	httpc := c.httpc
	if httpc == nil {
		httpc = &http.Client{Timeout: c.Timeout}
	}
	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}
		resp, err := httpc.Do(req)
		if err != nil {
			return "", err
		}
		raw, rerr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if rerr != nil {
			return "", rerr
		}
		if resp.StatusCode/100 == 2 {
			content := gjson.GetBytes(raw, "choices.0.message.content")
			if !content.Exists() {
				return "", fmt.Errorf("empty choices")
			}
			return content.String(), nil
		}
		msg := strings.TrimSpace(gjson.GetBytes(raw, "error.message").String())
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if !retryable(resp.StatusCode) || attempt >= c.MaxRetries {
			break
		}
		if err := sleep(ctx, retryWait(resp.Header.Get("Retry-After"), attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *ChatClient) maskedHeaders() map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		out["Authorization"] = "Bearer " + mask(c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			v = mask(v)
		}
		out[k] = v
	}
	return out
}

func mask(v string) string {
	if len(v) > 4 {
		return "****" + v[len(v)-4:]
	}
	return "****"
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryWait: 0.8s, 1.6s, 3.2s ... 封顶 8s。
func retryWait(retryAfter string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	wait := (800 * time.Millisecond) << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Completer 抽象一次对话补全，便于测试替换。
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMAdvisor 通过对话模型给出策略建议。
type LLMAdvisor struct {
	client Completer
}

func NewLLMAdvisor(client Completer) *LLMAdvisor {
	return &LLMAdvisor{client: client}
}

func (a *LLMAdvisor) Recommend(ctx context.Context, in Context, currentStrategyID string) (*Recommendation, error) {
	user := buildUserPrompt(in, currentStrategyID)
	logger.LogAdvisorRequest(in.SessionID, systemPrompt, user, "")
	raw, err := a.client.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}
	logger.LogAdvisorResponse(in.SessionID, raw)
	rec, err := ParseRecommendation(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}
