package intent

import (
	"context"
	"log/slog"
	"strings"

	"VoiceDot/internal/chain"
	"VoiceDot/internal/contacts"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/llm"
	"VoiceDot/internal/observability/metrics"
	"VoiceDot/internal/token"
	"VoiceDot/internal/units"
	"VoiceDot/pkg/logger"
)

const (
	pathLLM      = "llm"
	pathFallback = "fallback"
	pathFailed   = "failed"
)

// Extractor 将转写文本转换为规范化的意图。
type Extractor struct {
	chains       *chain.Registry
	tokens       *token.Catalog
	drafter      llm.Client
	contacts     contacts.Resolver
	defaultToken string
	logger       *slog.Logger
}

// Option 配置 Extractor。
type Option func(*Extractor)

// WithDrafter 设置起草意图的大模型客户端；为空时只使用正则回退。
func WithDrafter(client llm.Client) Option {
	return func(e *Extractor) {
		e.drafter = client
	}
}

// WithContacts 设置联系人解析器。
func WithContacts(resolver contacts.Resolver) Option {
	return func(e *Extractor) {
		e.contacts = resolver
	}
}

// WithDefaultToken 设置正则回退时使用的默认代币。
func WithDefaultToken(symbol string) Option {
	return func(e *Extractor) {
		if symbol = strings.TrimSpace(symbol); symbol != "" {
			e.defaultToken = strings.ToUpper(symbol)
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor 创建意图解析器。
func NewExtractor(chains *chain.Registry, tokens *token.Catalog, opts ...Option) (*Extractor, error) {
	if chains == nil || tokens == nil {
		return nil, xerrors.New(xerrors.CodeInitialization, "intent extractor requires chain registry and token catalog")
	}
	e := &Extractor{
		chains:       chains,
		tokens:       tokens,
		defaultToken: "DOT",
		logger:       logger.Named("intent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if _, err := tokens.Lookup(e.defaultToken); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitialization, err, "default token is not in the catalog")
	}
	return e, nil
}

// Extract 解析转写文本。大模型不可用或报错时退回正则解析；
// 大模型给出的 JSON 不符合结构时直接失败。任何一笔不合法都会使整个意图失败。
func (e *Extractor) Extract(ctx context.Context, transcript, language string) (*Intent, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "transcript is empty")
	}

	in, path, err := e.draft(ctx, transcript, language)
	if err == nil {
		err = e.normalize(in)
	}
	if err != nil {
		metrics.ObserveExtraction(pathFailed)
		return nil, err
	}
	metrics.ObserveExtraction(path)
	return in, nil
}

func (e *Extractor) draft(ctx context.Context, transcript, language string) (*Intent, string, error) {
	if e.drafter != nil {
		resp, err := e.drafter.Generate(ctx, e.draftRequest(transcript, language))
		if err == nil {
			in, err := Decode([]byte(resp.Content))
			if err != nil {
				return nil, pathLLM, err
			}
			if language != "" && in.Language == "en" {
				in.Language = language
			}
			return in, pathLLM, nil
		}
		e.logger.Warn("意图起草失败，使用正则回退", slog.Any("error", err))
	}
	in, err := ParseFallback(transcript, language, e.defaultToken, e.chains.DefaultChain())
	return in, pathFallback, err
}

func (e *Extractor) draftRequest(transcript, language string) llm.Request {
	req := llm.Request{
		Transcript:   transcript,
		Language:     language,
		Chains:       e.chains.Chains(),
		Tokens:       e.tokens.Symbols(),
		DefaultChain: e.chains.DefaultChain(),
		DefaultToken: e.defaultToken,
	}
	if e.contacts != nil {
		for _, c := range e.contacts.All() {
			req.Contacts = append(req.Contacts, llm.Contact{Name: c.Name, Chain: c.Chain})
		}
	}
	return req
}

func (e *Extractor) normalize(in *Intent) error {
	for i := range in.Items {
		if err := e.normalizeItem(&in.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) normalizeItem(item *Item) error {
	tok, err := e.tokens.Lookup(item.Token)
	if err != nil {
		return err
	}
	item.Token = tok.Symbol
	item.OriginChain = e.chains.Normalize(item.OriginChain, tok.Chain)
	item.DestinationChain = e.chains.Normalize(item.DestinationChain, tok.Chain)

	amount, err := units.DecimalToUnits(item.Amount, tok.Decimals)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return xerrors.New(xerrors.CodeValidation, "amount must be greater than zero")
	}
	item.Amount = units.UnitsToDecimal(amount, tok.Decimals)

	dest, err := e.chains.Lookup(item.DestinationChain)
	if err != nil {
		return err
	}
	raw := strings.TrimSpace(item.Recipient)
	recipient := raw
	if chain.ValidateAddress(dest, recipient) != nil && e.contacts != nil {
		if c, ok := e.contacts.Resolve(raw, dest.Name); ok {
			recipient = c.Address
		}
	}
	if err := chain.ValidateAddress(dest, recipient); err != nil {
		return xerrors.Newf(xerrors.CodeValidation, "invalid recipient address: %s", raw)
	}
	item.Recipient = recipient
	return nil
}
