package ledger

import (
	"encoding/json"

	xerrors "VoiceDot/internal/errors"
)

// Status 表示交易记录在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusSubmitted Status = "submitted"
	StatusFailed    Status = "failed"
)

// Record 是一笔待确认或已提交的转账。
type Record struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	VoiceCommand string          `json:"voice_command"`
	ParsedIntent json.RawMessage `json:"parsed_intent"`
	// RecipientAddress 是已校验的链上地址，而非联系人名称。
	RecipientAddress string  `json:"recipient_address"`
	Amount           string  `json:"amount"`
	TokenSymbol      string  `json:"token_symbol"`
	TransactionHash  *string `json:"transaction_hash,omitempty"`
	Status           Status  `json:"status"`
	CreatedAt        int64   `json:"created_at"`
	ConfirmedAt      *int64  `json:"confirmed_at,omitempty"`
	UpdatedAt        int64   `json:"updated_at"`
}

// ErrNotFound 表示交易记录不存在。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "transaction not found")

func conflictError(id string, status Status) error {
	return xerrors.Newf(xerrors.CodeConflict, "transaction %s is %s", id, status)
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusFailed},
	StatusConfirmed: {StatusSubmitted, StatusFailed},
}

// ValidTransition 判断状态迁移是否合法。submitted 与 failed 为终态。
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition 拒绝状态机之外的迁移；from 与 to 相同表示原地更新附加字段。
func checkTransition(from, to Status) error {
	if from == to || ValidTransition(from, to) {
		return nil
	}
	return xerrors.Newf(xerrors.CodeConflict, "illegal transition %s -> %s", from, to)
}

// IsValidStatus 检查状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusSubmitted, StatusFailed:
		return true
	default:
		return false
	}
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.ParsedIntent != nil {
		c.ParsedIntent = append(json.RawMessage(nil), r.ParsedIntent...)
	}
	if r.TransactionHash != nil {
		hash := *r.TransactionHash
		c.TransactionHash = &hash
	}
	if r.ConfirmedAt != nil {
		at := *r.ConfirmedAt
		c.ConfirmedAt = &at
	}
	return &c
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateNew(rec *Record) error {
	if rec == nil {
		return xerrors.New(xerrors.CodeValidation, "record is required")
	}
	if rec.ID == "" || rec.UserID == "" {
		return xerrors.New(xerrors.CodeValidation, "record id and user_id are required")
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.Status != StatusPending {
		return xerrors.Newf(xerrors.CodeValidation, "new records must be pending, got %s", rec.Status)
	}
	if len(rec.ParsedIntent) == 0 {
		rec.ParsedIntent = json.RawMessage("{}")
	}
	return nil
}

// Session 记录一次语音交互：识别文本、回复文本以及产生的交易。
type Session struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id"`
	Transcription  string   `json:"transcription"`
	ResponseText   string   `json:"response_text"`
	TransactionIDs []string `json:"transaction_ids"`
	CreatedAt      int64    `json:"created_at"`
}

func (s *Session) clone() *Session {
	c := *s
	c.TransactionIDs = append([]string(nil), s.TransactionIDs...)
	return &c
}
