package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider 基于OpenAI兼容接口的补全供应商。
// 主备两个供应商都走这个实现，只是端点和模型不同。
type OpenAIProvider struct {
	name   string
	client *openai.Client
	model  string
}

// NewOpenAIProvider 创建供应商客户端
func NewOpenAIProvider(name, baseURL, apiKey, model string) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

// ChatComplete 发起一次非流式补全请求
func (p *OpenAIProvider) ChatComplete(ctx context.Context, history []Message) (string, error) {
	apiMessages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: apiMessages,
	})
	if err != nil {
		return "", fmt.Errorf("补全请求失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("补全响应为空")
	}
	return resp.Choices[0].Message.Content, nil
}
