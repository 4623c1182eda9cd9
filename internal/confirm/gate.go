// Package confirm classifies follow-up utterances and drives the
// pending → confirmed/failed step of the transaction ledger.
package confirm

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/ledger"
	"VoiceDot/pkg/logger"
)

// Decision 是对确认话术的分类结果。
type Decision string

const (
	DecisionConfirmed     Decision = "confirmed"
	DecisionCancelled     Decision = "cancelled"
	DecisionClarification Decision = "clarification"
)

var (
	affirmativeWords = setOf("yes", "yeah", "yep", "confirm", "confirmed", "proceed", "approve", "ok", "okay", "sure", "go", "send", "do")
	negativeWords    = setOf("no", "nope", "cancel", "stop", "abort", "reject", "deny", "don't", "dont", "not", "halt")

	affirmativePhrases = []string{"go ahead", "do it"}
)

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// Classify 按词法判断话术意图。否定词优先于肯定词；
// 整句只有 "1" 或 "0" 时视为弱肯定或弱否定。
func Classify(utterance string) Decision {
	words := tokenize(utterance)
	if len(words) == 1 {
		switch words[0] {
		case "1":
			return DecisionConfirmed
		case "0":
			return DecisionCancelled
		}
	}

	affirmative := false
	for _, w := range words {
		if _, ok := negativeWords[w]; ok {
			return DecisionCancelled
		}
		if _, ok := affirmativeWords[w]; ok {
			affirmative = true
		}
	}
	if !affirmative {
		joined := " " + strings.Join(words, " ") + " "
		for _, phrase := range affirmativePhrases {
			if strings.Contains(joined, " "+phrase+" ") {
				affirmative = true
				break
			}
		}
	}
	if affirmative {
		return DecisionConfirmed
	}
	return DecisionClarification
}

func tokenize(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

// Result 是一次确认请求的处理结果。
type Result struct {
	Decision       Decision
	TransactionIDs []string
	// Records 为状态变更后的记录；clarification 时为空。
	Records []*ledger.Record
}

// Gate 根据用户回复推进账本状态。
type Gate struct {
	store  ledger.Store
	logger *slog.Logger
}

// Option 配置 Gate。
type Option func(*Gate)

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate 创建确认闸门。
func NewGate(store ledger.Store, opts ...Option) *Gate {
	g := &Gate{store: store, logger: logger.Named("confirm")}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Decide 分类话术并整批迁移交易状态。任一交易不属于该用户时按不存在处理；
// 任一交易不处于 pending 时整批失败，不会部分确认。
func (g *Gate) Decide(ctx context.Context, userID, utterance string, ids []string) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, xerrors.New(xerrors.CodeValidation, "user_id is required")
	}
	ids = compact(ids)
	if len(ids) == 0 {
		return Result{}, xerrors.New(xerrors.CodeValidation, "transaction_ids must not be empty")
	}

	for _, id := range ids {
		rec, err := g.store.Get(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if rec.UserID != userID {
			return Result{}, ledger.ErrNotFound
		}
	}

	decision := Classify(utterance)
	result := Result{Decision: decision, TransactionIDs: ids}

	var (
		records []*ledger.Record
		err     error
	)
	switch decision {
	case DecisionConfirmed:
		records, err = g.store.TransitionToConfirmed(ctx, ids)
	case DecisionCancelled:
		records, err = g.store.TransitionToFailed(ctx, ids)
	default:
		return result, nil
	}
	if err != nil {
		return Result{}, err
	}
	result.Records = records
	g.logger.Info("交易确认结果", slog.String("user_id", userID), slog.String("decision", string(decision)), slog.Int("count", len(ids)))
	return result, nil
}

func compact(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
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
