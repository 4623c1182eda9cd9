package speech

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	xerrors "VoiceDot/internal/errors"
)

const (
	defaultBaseURL  = "https://api.elevenlabs.io"
	defaultVoiceID  = "21m00Tcm4TlvDq8ikWAM"
	defaultSTTModel = "scribe_v1"
	defaultTTSModel = "eleven_multilingual_v2"
	defaultTimeout  = 30 * time.Second
)

// Config 描述 ElevenLabs 接口参数。
type Config struct {
	APIKey   string
	BaseURL  string
	VoiceID  string
	STTModel string
	TTSModel string
	Timeout  time.Duration
}

// ElevenLabs 通过 HTTP 调用 ElevenLabs 的转写与合成接口。
type ElevenLabs struct {
	apiKey     string
	baseURL    string
	voiceID    string
	sttModel   string
	ttsModel   string
	httpClient *http.Client
}

var (
	_ Transcriber = (*ElevenLabs)(nil)
	_ Synthesizer = (*ElevenLabs)(nil)
)

// NewElevenLabs 创建客户端。
func NewElevenLabs(cfg Config) (*ElevenLabs, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitialization, "未提供 ElevenLabs API Key")
	}
	c := &ElevenLabs{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(orDefault(cfg.BaseURL, defaultBaseURL), "/"),
		voiceID:  orDefault(cfg.VoiceID, defaultVoiceID),
		sttModel: orDefault(cfg.STTModel, defaultSTTModel),
		ttsModel: orDefault(cfg.TTSModel, defaultTTSModel),
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.httpClient = &http.Client{Timeout: timeout}
	return c, nil
}

// Transcribe 以 multipart 表单上传音频并返回识别文本。
func (c *ElevenLabs) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "audio."+orDefault(format, DefaultFormat))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstream, err, "构建转写请求失败")
	}
	if _, err := part.Write(audio); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstream, err, "构建转写请求失败")
	}
	if err := form.WriteField("model_id", c.sttModel); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstream, err, "构建转写请求失败")
	}
	if err := form.Close(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstream, err, "构建转写请求失败")
	}

	resp, err := c.do(ctx, "/v1/speech-to-text", form.FormDataContentType(), "application/json", &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstream, err, "解析转写结果失败")
	}
	return strings.TrimSpace(decoded.Text), nil
}

// Synthesize 合成 mp3 音频。
func (c *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "model_id": c.ttsModel})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "构建合成请求失败")
	}
	resp, err := c.do(ctx, "/v1/text-to-speech/"+c.voiceID, "application/json", "audio/mpeg", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "读取合成音频失败")
	}
	if len(audio) == 0 {
		return nil, xerrors.New(xerrors.CodeUpstream, "合成音频为空")
	}
	return audio, nil
}

func (c *ElevenLabs) do(ctx context.Context, path, contentType, accept string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "构建 ElevenLabs 请求失败")
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "请求 ElevenLabs 超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "请求 ElevenLabs 失败")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, xerrors.New(xerrors.CodeUpstream, fmt.Sprintf("ElevenLabs 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return resp, nil
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
