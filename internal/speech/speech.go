// Package speech wraps the speech-to-text and text-to-speech collaborators
// and seals synthesized audio before it leaves the service.
package speech

import (
	"context"
	"encoding/base64"
	"strings"

	xerrors "VoiceDot/internal/errors"
)

// DefaultFormat 是未指定格式时的音频格式。
const DefaultFormat = "webm"

// Transcriber 把音频转写为文本。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Synthesizer 把文本合成为 mp3 音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// NormalizeFormat 校验音频格式，仅支持 mp3、wav 与 webm。
func NormalizeFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case "":
		return DefaultFormat, nil
	case "mp3", "wav", "webm":
		return f, nil
	default:
		return "", xerrors.Newf(xerrors.CodeUnsupportedMedia, "unsupported audio format: %s", format)
	}
}

// DecodeAudio 解码 base64 音频并检查大小。maxBytes 不大于 0 时不限制。
func DecodeAudio(encoded string, maxBytes int) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+len(";base64,"):]
	}
	if encoded == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "audio_data is empty")
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(encoded)) > maxBytes+2 {
		return nil, xerrors.Newf(xerrors.CodePayloadTooLarge, "audio exceeds %d bytes", maxBytes)
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeValidation, "audio_data must be base64 encoded")
	}
	if maxBytes > 0 && len(audio) > maxBytes {
		return nil, xerrors.Newf(xerrors.CodePayloadTooLarge, "audio exceeds %d bytes", maxBytes)
	}
	return audio, nil
}
