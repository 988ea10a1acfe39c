package nlu

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// systemPrompt instructs the model to answer with a single JSON
// classification object.
const systemPrompt = `你是一個專業的自行車零件 B2B 客服助手。幫助用戶理解意圖並提取關鍵信息。

用戶意圖類型：
1. query_order - 查詢訂單（提取訂單號）
2. query_product - 查詢產品（提取產品名稱）
3. query_stock - 查詢庫存（提取產品名稱）
4. greeting - 問候
5. get_help - 獲取幫助
6. contact_support - 聯繫客服
7. unclear - 無法理解

請回應 JSON 格式：
{
  "intent": "意圖名稱",
  "confidence": 0.0-1.0,
  "entities": {
    "orderNumber": "訂單號（如有）",
    "productName": "產品名稱（如有）",
    "categoryName": "分類名稱（如有）"
  },
  "message": "給用戶的回覆"
}`

// OpenAIProvider classifies messages through a hosted chat-completion API.
type OpenAIProvider struct {
	client  *openai.Client
	apiKey  string
	model   string
	timeout time.Duration
}

// NewOpenAIProvider creates the hosted provider. An empty apiKey yields a
// provider that fails with ErrNotConfigured on every call, which the router
// turns into a rule-engine fallback.
func NewOpenAIProvider(apiKey, baseURL, model string, timeout time.Duration) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cfg),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Understand(ctx context.Context, text string, _ Dialog) (Result, error) {
	if p.apiKey == "" {
		return Result{}, ErrNotConfigured
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("chat completion returned no choices")
	}

	return parseIntentResponse(resp.Choices[0].Message.Content)
}
