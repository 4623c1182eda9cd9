package speech

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	xerrors "VoiceDot/internal/errors"
)

// Audio 是返回给客户端的合成音频。
type Audio struct {
	AudioBase64 string `json:"audio_base64"`
	IV          string `json:"iv"`
	Format      string `json:"format"`
}

// Sealer 使用 AES-256-GCM 加密音频；未配置密钥时只做 base64 编码。
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer 根据 base64 编码的 32 字节密钥创建 Sealer。密钥为空时返回不加密的实例。
func NewSealer(keyBase64 string) (*Sealer, error) {
	keyBase64 = strings.TrimSpace(keyBase64)
	if keyBase64 == "" {
		return &Sealer{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitialization, err, "音频加密密钥不是合法的 base64")
	}
	if len(key) != 32 {
		return nil, xerrors.Newf(xerrors.CodeInitialization, "音频加密密钥长度应为 32 字节，实际为 %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitialization, err, "初始化 AES 失败")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitialization, err, "初始化 GCM 失败")
	}
	return &Sealer{aead: aead}, nil
}

// Encrypted 判断是否启用了加密。
func (s *Sealer) Encrypted() bool {
	return s != nil && s.aead != nil
}

// Seal 加密 mp3 音频。
func (s *Sealer) Seal(audio []byte) (Audio, error) {
	if !s.Encrypted() {
		return Audio{AudioBase64: base64.StdEncoding.EncodeToString(audio), Format: "mp3"}, nil
	}
	iv := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return Audio{}, xerrors.Wrap(xerrors.CodeUnknown, err, "生成 IV 失败")
	}
	ciphertext := s.aead.Seal(nil, iv, audio, nil)
	return Audio{
		AudioBase64: base64.StdEncoding.EncodeToString(ciphertext),
		IV:          base64.StdEncoding.EncodeToString(iv),
		Format:      "mp3",
	}, nil
}

// Open 解密 Seal 的输出。
func (s *Sealer) Open(a Audio) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.AudioBase64)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "audio_base64 is invalid")
	}
	if !s.Encrypted() {
		return data, nil
	}
	iv, err := base64.StdEncoding.DecodeString(a.IV)
	if err != nil || len(iv) != s.aead.NonceSize() {
		return nil, xerrors.New(xerrors.CodeValidation, "iv is invalid")
	}
	plain, err := s.aead.Open(nil, iv, data, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "decrypt audio failed")
	}
	return plain, nil
}
