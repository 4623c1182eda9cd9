package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"VoiceDot/internal/confirm"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/events"
	"VoiceDot/internal/intent"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/observability/metrics"
	"VoiceDot/internal/speech"
	"VoiceDot/pkg/logger"
)

const (
	promptSuffix        = "Say confirm to proceed or cancel to abort."
	confirmedText       = "Transaction confirmed."
	cancelledText       = "Transaction cancelled."
	clarificationPrompt = "Sorry, I did not catch that. " + promptSuffix
)

// ProcessRequest 是一条语音或文本支付指令。
type ProcessRequest struct {
	UserID      string
	Text        string
	AudioBase64 string
	Format      string
	Language    string
}

// ProcessResult 汇总指令处理结果。
type ProcessResult struct {
	SessionID      string
	Transcript     string
	TransactionIDs []string
	Intent         *intent.Intent
	PromptText     string
	// Audio 在语音合成失败或未配置时为空。
	Audio *speech.Audio
}

// ConfirmRequest 是用户对待确认交易的回复。
type ConfirmRequest struct {
	UserID         string
	Text           string
	AudioBase64    string
	Format         string
	TransactionIDs []string
}

// ConfirmResult 汇总确认结果。
type ConfirmResult struct {
	SessionID      string
	Transcript     string
	Status         confirm.Decision
	TransactionIDs []string
	ResponseText   string
	Audio          *speech.Audio
}

// Pipeline 协调转写、意图提取、账本与确认闸门，是语音支付的业务核心。
type Pipeline struct {
	extractor     *intent.Extractor
	store         ledger.Store
	gate          *confirm.Gate
	transcriber   speech.Transcriber
	synthesizer   speech.Synthesizer
	sealer        *speech.Sealer
	emitter       *events.Emitter
	maxAudioBytes int
	speechTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// Option 定义可选的 Pipeline 配置。
type Option func(*Pipeline)

// WithTranscriber 配置语音转写。
func WithTranscriber(t speech.Transcriber) Option {
	return func(p *Pipeline) {
		p.transcriber = t
	}
}

// WithSynthesizer 配置语音合成与音频加密。
func WithSynthesizer(s speech.Synthesizer, sealer *speech.Sealer) Option {
	return func(p *Pipeline) {
		p.synthesizer = s
		if sealer != nil {
			p.sealer = sealer
		}
	}
}

// WithEmitter 配置事件发射器。
func WithEmitter(e *events.Emitter) Option {
	return func(p *Pipeline) {
		p.emitter = e
	}
}

// WithMaxAudioBytes 限制上传音频大小。
func WithMaxAudioBytes(n int) Option {
	return func(p *Pipeline) {
		p.maxAudioBytes = n
	}
}

// WithSpeechTimeout 设置单次语音调用的超时时间。
func WithSpeechTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.speechTimeout = d
		}
	}
}

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New 创建语音流程。
func New(extractor *intent.Extractor, store ledger.Store, gate *confirm.Gate, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:     extractor,
		store:         store,
		gate:          gate,
		sealer:        &speech.Sealer{},
		maxAudioBytes: 10 << 20,
		speechTimeout: 30 * time.Second,
		now:           time.Now,
		logger:        logger.Named("voice"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Process 把一条指令转换为若干待确认交易并生成确认话术。
// 批量意图中的交易要么全部写入，要么全部不写入。
func (p *Pipeline) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	// 验证请求。
	if strings.TrimSpace(req.UserID) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "user_id is required")
	}
	transcript, err := p.transcript(ctx, req.Text, req.AudioBase64, req.Format)
	if err != nil {
		return nil, err
	}

	// 提取并规范化意图。
	in, err := p.extractor.Extract(ctx, transcript, req.Language)
	if err != nil {
		return nil, err
	}

	// 生成待确认交易并整批写入账本。
	records := make([]*ledger.Record, 0, len(in.Items))
	for _, item := range in.Items {
		raw, err := intent.EncodePayload(intent.Payload{Item: item})
		if err != nil {
			return nil, err
		}
		records = append(records, &ledger.Record{
			ID:               uuid.NewString(),
			UserID:           req.UserID,
			VoiceCommand:     transcript,
			ParsedIntent:     raw,
			RecipientAddress: item.Recipient,
			Amount:           item.Amount,
			TokenSymbol:      item.Token,
			Status:           ledger.StatusPending,
		})
	}
	if err := p.store.CreateBatch(ctx, records); err != nil {
		return nil, err
	}
	p.emitter.Emit(ctx, events.TypeCreated, records...)

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	// 生成确认话术与语音。
	prompt := ConfirmationPrompt(in.Items)
	result := &ProcessResult{
		Transcript:     transcript,
		TransactionIDs: ids,
		Intent:         in,
		PromptText:     prompt,
		Audio:          p.synthesize(ctx, prompt),
	}
	result.SessionID = p.recordSession(ctx, req.UserID, transcript, prompt, ids)

	p.logger.Info("语音指令已处理",
		slog.String("user_id", req.UserID),
		slog.String("type", in.Type),
		slog.Int("transactions", len(ids)))
	return result, nil
}

// Confirm 根据用户回复确认或取消交易。
func (p *Pipeline) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "user_id is required")
	}
	if len(req.TransactionIDs) == 0 {
		return nil, xerrors.New(xerrors.CodeValidation, "transaction_ids must not be empty")
	}
	transcript, err := p.transcript(ctx, req.Text, req.AudioBase64, req.Format)
	if err != nil {
		return nil, err
	}

	decision, err := p.gate.Decide(ctx, req.UserID, transcript, req.TransactionIDs)
	if err != nil {
		return nil, err
	}

	var text string
	switch decision.Decision {
	case confirm.DecisionConfirmed:
		text = confirmedText
		p.emitter.Emit(ctx, events.TypeConfirmed, decision.Records...)
	case confirm.DecisionCancelled:
		text = cancelledText
		p.emitter.Emit(ctx, events.TypeCancelled, decision.Records...)
	default:
		text = clarificationPrompt
	}

	result := &ConfirmResult{
		Transcript:     transcript,
		Status:         decision.Decision,
		TransactionIDs: decision.TransactionIDs,
		ResponseText:   text,
		Audio:          p.synthesize(ctx, text),
	}
	result.SessionID = p.recordSession(ctx, req.UserID, transcript, text, decision.TransactionIDs)
	return result, nil
}

// Sessions 返回用户最近的语音会话。
func (p *Pipeline) Sessions(ctx context.Context, userID string, limit int) ([]*ledger.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "user_id is required")
	}
	return p.store.Sessions(ctx, userID, limit)
}

func (p *Pipeline) transcript(ctx context.Context, text, audio, format string) (string, error) {
	if t := strings.TrimSpace(text); t != "" {
		return t, nil
	}
	if strings.TrimSpace(audio) == "" {
		return "", xerrors.New(xerrors.CodeValidation, "text or audio_data is required")
	}
	format, err := speech.NormalizeFormat(format)
	if err != nil {
		return "", err
	}
	data, err := speech.DecodeAudio(audio, p.maxAudioBytes)
	if err != nil {
		return "", err
	}
	if p.transcriber == nil {
		return "", xerrors.New(xerrors.CodeServiceUnavailable, "speech-to-text is not configured")
	}

	sttCtx, cancel := context.WithTimeout(ctx, p.speechTimeout)
	defer cancel()
	transcript, err := p.transcriber.Transcribe(sttCtx, data, format)
	if err != nil {
		return "", err
	}
	if transcript = strings.TrimSpace(transcript); transcript == "" {
		return "", xerrors.New(xerrors.CodeValidation, "could not transcribe audio")
	}
	return transcript, nil
}

// synthesize 合成并加密语音，失败时降级为纯文本响应。
func (p *Pipeline) synthesize(ctx context.Context, text string) *speech.Audio {
	if p.synthesizer == nil {
		return nil
	}
	ttsCtx, cancel := context.WithTimeout(ctx, p.speechTimeout)
	defer cancel()
	raw, err := p.synthesizer.Synthesize(ttsCtx, text)
	if err != nil {
		metrics.ObserveSpeechDegradation("tts")
		p.logger.Warn("语音合成失败，仅返回文本", slog.Any("error", err))
		return nil
	}
	sealed, err := p.sealer.Seal(raw)
	if err != nil {
		metrics.ObserveSpeechDegradation("seal")
		p.logger.Warn("音频加密失败，仅返回文本", slog.Any("error", err))
		return nil
	}
	return &sealed
}

// recordSession 保存会话记录，失败不影响请求结果。
func (p *Pipeline) recordSession(ctx context.Context, userID, transcript, response string, ids []string) string {
	session := &ledger.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Transcription:  transcript,
		ResponseText:   response,
		TransactionIDs: ids,
		CreatedAt:      p.now().UnixMilli(),
	}
	if err := p.store.RecordSession(ctx, session); err != nil {
		p.logger.Warn("保存语音会话失败", slog.String("user_id", userID), slog.Any("error", err))
		return ""
	}
	return session.ID
}

// ConfirmationPrompt 生成确认话术。
func ConfirmationPrompt(items []intent.Item) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s %s to %s", item.Amount, item.Token, ShortAddress(item.Recipient))
	}
	return "You asked to send " + strings.Join(parts, ", and ") + ". " + promptSuffix
}

// ShortAddress 保留地址前 6 位与后 4 位。
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
