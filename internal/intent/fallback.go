package intent

import (
	"regexp"
	"strings"

	xerrors "VoiceDot/internal/errors"
)

var fallbackPattern = regexp.MustCompile(`(?i)\b(?:send|transfer|pay)\s+(\d+(?:\.\d+)?|\.\d+)\s*([a-z]{2,10})?\s+to\s+(\S+)`)

// ParseFallback 用正则解析最简单的 "pay AMOUNT [TOKEN] to RECIPIENT" 句式。
// 未给出代币时使用 defaultToken，两端链均为 defaultChain。
func ParseFallback(transcript, language, defaultToken, defaultChain string) (*Intent, error) {
	m := fallbackPattern.FindStringSubmatch(transcript)
	if m == nil {
		return nil, xerrors.New(xerrors.CodeValidation, "could not understand payment command")
	}
	tok := m[2]
	if tok == "" {
		tok = defaultToken
	}
	recipient := strings.TrimRight(m[3], ".,;:!?")
	if language == "" {
		language = "en"
	}
	return &Intent{
		Type:     TypeSingle,
		Language: language,
		Items: []Item{{
			Action:           ActionTransfer,
			Amount:           m[1],
			Token:            strings.ToUpper(tok),
			Recipient:        recipient,
			OriginChain:      defaultChain,
			DestinationChain: defaultChain,
		}},
	}, nil
}
