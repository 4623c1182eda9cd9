// Package intent models payment intents and turns transcripts into
// normalized, schema-checked intents. Drafted JSON from the language
// model is untrusted and always goes through Decode before use.
package intent

import (
	"encoding/json"
	"strings"

	xerrors "VoiceDot/internal/errors"
)

const (
	ActionTransfer = "transfer"

	TypeSingle = "single"
	TypeBatch  = "batch"
)

// Item 是单笔转账意图。
type Item struct {
	Action           string `json:"action" validate:"required,eq=transfer"`
	Amount           string `json:"amount" validate:"required"`
	Token            string `json:"token" validate:"required"`
	Recipient        string `json:"recipient" validate:"required"`
	OriginChain      string `json:"origin_chain,omitempty"`
	DestinationChain string `json:"destination_chain,omitempty"`
}

// CrossChain 判断是否为跨链转账。
func (i Item) CrossChain() bool {
	return i.OriginChain != i.DestinationChain
}

// Intent 是一条语音指令解析出的完整意图。
type Intent struct {
	Type      string  `json:"type" validate:"required,oneof=single batch"`
	Language  string  `json:"language"`
	Items     []Item  `json:"items" validate:"required,min=1,dive"`
	Schedule  *string `json:"schedule" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Condition *string `json:"condition"`
}

// Constraints 是跨链转账在执行时附加的安全约束。
// MinReceive 以人类可读的十进制字符串保存，比较时换算为最小单位。
type Constraints struct {
	MinReceive  string `json:"min_receive,omitempty"`
	SlippageBps *int   `json:"slippage_bps,omitempty"`
	Token       string `json:"token"`
	Chain       string `json:"chain"`
}

// Payload 是账本记录中 parsed_intent 字段的结构。
type Payload struct {
	Item        Item         `json:"item"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// EncodePayload 序列化 parsed_intent。
func EncodePayload(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "encode parsed intent")
	}
	return raw, nil
}

// DecodePayload 解析 parsed_intent；空值视为空载荷。
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if len(strings.TrimSpace(string(raw))) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode parsed intent")
	}
	return p, nil
}
