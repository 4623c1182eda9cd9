package openai

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 30 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 兼容接口起草支付意图。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ llm.Client = (*Client)(nil)

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitialization, "未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate 请求模型输出严格的意图 JSON，返回未经校验的原文。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "构建 OpenAI 请求失败")
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "请求 OpenAI 超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "请求 OpenAI 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, xerrors.Newf(xerrors.CodeUpstream, "OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "解析 OpenAI 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeUpstream, "OpenAI 响应中没有有效的 choices")
	}

	content := stripFences(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, xerrors.New(xerrors.CodeUpstream, "OpenAI 响应内容为空")
	}

	model := decoded.Model
	if model == "" {
		model = c.model
	}
	return &llm.Response{Content: content, Model: model}, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{
			Role:    "system",
			Content: systemPrompt,
		},
		{
			Role:    "user",
			Content: buildUserPrompt(req),
		},
	}

	body := map[string]any{
		"model":           c.model,
		"messages":        messages,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "序列化 OpenAI 请求失败")
	}
	return encoded, nil
}

const systemPrompt = "" +
	"You convert spoken payment commands into JSON. " +
	"Respond with exactly one JSON object and nothing else, using this shape: " +
	"{\"type\":\"single\"|\"batch\",\"language\":string,\"items\":[{\"action\":\"transfer\",\"amount\":string," +
	"\"token\":string,\"recipient\":string,\"origin_chain\":string,\"destination_chain\":string}]," +
	"\"schedule\":string|null,\"condition\":string|null}. " +
	"Amounts are plain decimal strings without units. Keep contact names verbatim as the recipient. " +
	"Use type \"single\" for exactly one transfer and \"batch\" for several. Do not add other fields."

func buildUserPrompt(req llm.Request) string {
	var builder strings.Builder
	builder.WriteString("## Command\n")
	builder.WriteString(strings.TrimSpace(req.Transcript))
	builder.WriteString("\n\n## Context\n")
	if lang := strings.TrimSpace(req.Language); lang != "" {
		builder.WriteString(fmt.Sprintf("language: %s\n", lang))
	}
	if len(req.Chains) > 0 {
		builder.WriteString(fmt.Sprintf("chains: %s\n", strings.Join(req.Chains, ", ")))
	}
	if len(req.Tokens) > 0 {
		builder.WriteString(fmt.Sprintf("tokens: %s\n", strings.Join(req.Tokens, ", ")))
	}
	if req.DefaultChain != "" {
		builder.WriteString(fmt.Sprintf("default chain: %s\n", req.DefaultChain))
	}
	if req.DefaultToken != "" {
		builder.WriteString(fmt.Sprintf("default token: %s\n", req.DefaultToken))
	}

	if len(req.Contacts) > 0 {
		builder.WriteString("\n## Contacts\n")
		for idx, contact := range req.Contacts {
			builder.WriteString(fmt.Sprintf("[%d] %s (%s)\n", idx+1, strings.TrimSpace(contact.Name), contact.Chain))
			if idx >= 19 {
				break
			}
		}
	}
	return builder.String()
}

// stripFences 去掉模型偶尔附带的 Markdown 代码块标记。
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
