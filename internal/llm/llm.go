package llm

import "context"

// Request 描述一次意图起草所需的上下文。
type Request struct {
	Transcript string
	Language   string
	// Chains 与 Tokens 限定模型可以输出的链名与代币符号。
	Chains       []string
	Tokens       []string
	Contacts     []Contact
	DefaultChain string
	DefaultToken string
}

// Contact 是提供给模型的通讯录条目，帮助其保留联系人名称。
type Contact struct {
	Name  string
	Chain string
}

// Response 是模型返回的原始 JSON 文本。
type Response struct {
	Content string
	Model   string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
