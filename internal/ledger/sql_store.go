package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/observability/metrics"
)

const recordColumns = `id, user_id, voice_command, parsed_intent, recipient_address, amount, token_symbol,
    transaction_hash, status, created_at, confirmed_at, updated_at`

type recordRow struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	VoiceCommand     string         `db:"voice_command"`
	ParsedIntent     string         `db:"parsed_intent"`
	RecipientAddress string         `db:"recipient_address"`
	Amount           string         `db:"amount"`
	TokenSymbol      string         `db:"token_symbol"`
	TransactionHash  sql.NullString `db:"transaction_hash"`
	Status           string         `db:"status"`
	CreatedAt        int64          `db:"created_at"`
	ConfirmedAt      sql.NullInt64  `db:"confirmed_at"`
	UpdatedAt        int64          `db:"updated_at"`
}

func rowFromRecord(rec *Record) recordRow {
	row := recordRow{
		ID:               rec.ID,
		UserID:           rec.UserID,
		VoiceCommand:     rec.VoiceCommand,
		ParsedIntent:     string(rec.ParsedIntent),
		RecipientAddress: rec.RecipientAddress,
		Amount:           rec.Amount,
		TokenSymbol:      rec.TokenSymbol,
		Status:           string(rec.Status),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if rec.TransactionHash != nil {
		row.TransactionHash = sql.NullString{String: *rec.TransactionHash, Valid: true}
	}
	if rec.ConfirmedAt != nil {
		row.ConfirmedAt = sql.NullInt64{Int64: *rec.ConfirmedAt, Valid: true}
	}
	return row
}

func (r recordRow) toRecord() *Record {
	rec := &Record{
		ID:               r.ID,
		UserID:           r.UserID,
		VoiceCommand:     r.VoiceCommand,
		ParsedIntent:     json.RawMessage(r.ParsedIntent),
		RecipientAddress: r.RecipientAddress,
		Amount:           r.Amount,
		TokenSymbol:      r.TokenSymbol,
		Status:           Status(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.TransactionHash.Valid {
		hash := r.TransactionHash.String
		rec.TransactionHash = &hash
	}
	if r.ConfirmedAt.Valid {
		at := r.ConfirmedAt.Int64
		rec.ConfirmedAt = &at
	}
	return rec
}

// SQLStore 使用关系型数据库保存交易记录，支持 MySQL、PostgreSQL 与 SQLite。
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore 包装已打开的连接。迁移由 Open 负责。
func NewSQLStore(db *sqlx.DB, now func() time.Time) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, now: now}
}

// Create 实现 Store 接口。
func (s *SQLStore) Create(ctx context.Context, rec *Record) error {
	return s.CreateBatch(ctx, []*Record{rec})
}

const insertRecordSQL = `INSERT INTO transactions (` + recordColumns + `)
    VALUES (:id, :user_id, :voice_command, :parsed_intent, :recipient_address, :amount, :token_symbol,
    :transaction_hash, :status, :created_at, :confirmed_at, :updated_at)`

// CreateBatch 实现 Store 接口，整批在同一事务中写入。
func (s *SQLStore) CreateBatch(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return xerrors.New(xerrors.CodeValidation, "no records to create")
	}
	now := s.now().UnixMilli()
	for _, rec := range recs {
		if err := validateNew(rec); err != nil {
			return err
		}
		if rec.CreatedAt == 0 {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	for _, rec := range recs {
		if _, err := tx.NamedExecContext(ctx, insertRecordSQL, rowFromRecord(rec)); err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return xerrors.Newf(xerrors.CodeConflict, "transaction %s already exists", rec.ID)
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入交易记录失败")
		}
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+recordColumns+` FROM transactions WHERE id = ?`), id)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	return row.toRecord(), nil
}

// List 实现 Store 接口。
func (s *SQLStore) List(ctx context.Context, opts ...ListOption) ([]*Record, error) {
	options := BuildListOptions(opts...)

	var (
		clauses []string
		args    []any
	)
	if options.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, options.UserID)
	}
	if len(options.Statuses) > 0 {
		statuses := make([]string, len(options.Statuses))
		for i, status := range options.Statuses {
			statuses[i] = string(status)
		}
		clauses = append(clauses, "status IN (?)")
		args = append(args, statuses)
	}

	query := `SELECT ` + recordColumns + ` FROM transactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, options.Limit, options.Offset)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "构建查询失败")
	}
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易列表失败")
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// TransitionToConfirmed 实现 Store 接口。
func (s *SQLStore) TransitionToConfirmed(ctx context.Context, ids []string) ([]*Record, error) {
	now := s.now().UnixMilli()
	return s.transition(ctx, ids, StatusPending, StatusConfirmed, now, "confirmed_at = ?", now)
}

// TransitionToFailed 实现 Store 接口。
func (s *SQLStore) TransitionToFailed(ctx context.Context, ids []string) ([]*Record, error) {
	return s.transition(ctx, ids, StatusPending, StatusFailed, s.now().UnixMilli(), "")
}

// TransitionToSubmitted 实现 Store 接口。
func (s *SQLStore) TransitionToSubmitted(ctx context.Context, id, hash string) (*Record, error) {
	if hash == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "transaction hash is required")
	}
	out, err := s.transition(ctx, []string{id}, StatusConfirmed, StatusSubmitted, s.now().UnixMilli(), "transaction_hash = ?", hash)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// UpdateConstraints 实现 Store 接口。
func (s *SQLStore) UpdateConstraints(ctx context.Context, id string, parsedIntent json.RawMessage) (*Record, error) {
	out, err := s.transition(ctx, []string{id}, StatusConfirmed, StatusConfirmed, s.now().UnixMilli(), "parsed_intent = ?", string(parsedIntent))
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// transition 在事务内执行条件更新。影响行数与请求数量不一致时回滚，
// 并重新读取记录以区分不存在与状态冲突。
func (s *SQLStore) transition(ctx context.Context, ids []string, from, to Status, now int64, extraSet string, extraArgs ...any) ([]*Record, error) {
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, xerrors.New(xerrors.CodeValidation, "transaction_ids must not be empty")
	}

	set := "status = ?, updated_at = ?"
	args := []any{string(to), now}
	if extraSet != "" {
		set += ", " + extraSet
		args = append(args, extraArgs...)
	}
	args = append(args, string(from), ids)
	query, args, err := sqlx.In(`UPDATE transactions SET `+set+` WHERE status = ? AND id IN (?)`, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "构建更新语句失败")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新交易状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}

	records, err := s.selectByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if int(affected) != len(ids) {
		return nil, classifyTransitionFailure(ids, records, from)
	}

	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	committed = true
	if from != to {
		metrics.ObserveTransition(string(from), string(to), len(ids))
	}
	return orderByIDs(ids, records), nil
}

func (s *SQLStore) selectByIDs(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]*Record, error) {
	query, args, err := sqlx.In(`SELECT `+recordColumns+` FROM transactions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "构建查询失败")
	}
	var rows []recordRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	out := make(map[string]*Record, len(rows))
	for _, row := range rows {
		out[row.ID] = row.toRecord()
	}
	return out, nil
}

func classifyTransitionFailure(ids []string, records map[string]*Record, from Status) error {
	for _, id := range ids {
		if _, ok := records[id]; !ok {
			return ErrNotFound
		}
	}
	for _, id := range ids {
		if rec := records[id]; rec.Status != from {
			return conflictError(id, rec.Status)
		}
	}
	return xerrors.New(xerrors.CodeConflict, "concurrent transaction update")
}

func orderByIDs(ids []string, records map[string]*Record) []*Record {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := records[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

type sessionRow struct {
	ID             string `db:"id"`
	UserID         string `db:"user_id"`
	Transcription  string `db:"transcription"`
	ResponseText   string `db:"response_text"`
	TransactionIDs string `db:"transaction_ids"`
	CreatedAt      int64  `db:"created_at"`
}

// RecordSession 实现 Store 接口。
func (s *SQLStore) RecordSession(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" || session.UserID == "" {
		return xerrors.New(xerrors.CodeValidation, "session id and user_id are required")
	}
	if session.CreatedAt == 0 {
		session.CreatedAt = s.now().UnixMilli()
	}
	ids, err := json.Marshal(session.TransactionIDs)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeValidation, err, "编码交易列表失败")
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO voice_sessions (id, user_id, transcription, response_text, transaction_ids, created_at)
    VALUES (:id, :user_id, :transcription, :response_text, :transaction_ids, :created_at)`, sessionRow{
		ID:             session.ID,
		UserID:         session.UserID,
		Transcription:  session.Transcription,
		ResponseText:   session.ResponseText,
		TransactionIDs: string(ids),
		CreatedAt:      session.CreatedAt,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入语音会话失败")
	}
	return nil
}

// Sessions 实现 Store 接口。
func (s *SQLStore) Sessions(ctx context.Context, userID string, limit int) ([]*Session, error) {
	var rows []sessionRow
	query := s.db.Rebind(`SELECT id, user_id, transcription, response_text, transaction_ids, created_at
    FROM voice_sessions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, userID, clampLimit(limit)); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询语音会话失败")
	}
	out := make([]*Session, 0, len(rows))
	for _, row := range rows {
		session := &Session{
			ID:            row.ID,
			UserID:        row.UserID,
			Transcription: row.Transcription,
			ResponseText:  row.ResponseText,
			CreatedAt:     row.CreatedAt,
		}
		if row.TransactionIDs != "" {
			if err := json.Unmarshal([]byte(row.TransactionIDs), &session.TransactionIDs); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析语音会话失败")
			}
		}
		out = append(out, session)
	}
	return out, nil
}

// Close 实现 Store 接口。
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if stdErrors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
