package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/gofrs/flock"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"VoiceDot/deploy/migrations"
	xerrors "VoiceDot/internal/errors"
)

// Config 描述账本存储的后端。
type Config struct {
	// Driver 取值 memory、mysql、postgres 或 sqlite。
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// AutoMigrate 为 true 时在打开连接后执行 goose 迁移。
	AutoMigrate bool
}

type dialect struct {
	driverName   string
	gooseDialect string
}

var dialects = map[string]dialect{
	"mysql":    {driverName: "mysql", gooseDialect: "mysql"},
	"postgres": {driverName: "pgx", gooseDialect: "postgres"},
	"sqlite":   {driverName: "sqlite", gooseDialect: "sqlite3"},
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// goose 的方言与文件系统是包级状态，迁移需串行执行。
var migrateMu sync.Mutex

// Open 根据配置创建 Store。
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "memory" {
		return NewMemoryStore(), nil
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeInitialization, "unsupported ledger driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.Newf(xerrors.CodeInitialization, "ledger driver %s requires a dsn", driver)
	}

	dsn := cfg.DSN
	if driver == "mysql" {
		var err error
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitialization, err, "解析 MySQL DSN 失败")
		}
	}

	db, err := sqlx.Open(d.driverName, dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("连接 %s 失败", driver))
	}
	configurePool(db, cfg, driver)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("无法连接到 %s", driver))
	}

	if cfg.AutoMigrate {
		if err := migrate(ctx, db, d, driver, dsn); err != nil {
			db.Close()
			return nil, err
		}
	}
	return NewSQLStore(db, nil), nil
}

// mysqlDSN 强制开启 clientFoundRows，使条件更新的影响行数按匹配行计算，
// 否则内容未变化的 UpdateConstraints 会被误判为冲突。
func mysqlDSN(raw string) (string, error) {
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = false
	return cfg.FormatDSN(), nil
}

func configurePool(db *sqlx.DB, cfg Config, driver string) {
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func migrate(ctx context.Context, db *sqlx.DB, d dialect, driver, dsn string) error {
	if driver == "sqlite" {
		// 多个进程共用同一个 SQLite 文件时，用文件锁串行化迁移。
		if path := sqlitePath(dsn); path != "" {
			lock := flock.New(path + ".lock")
			if err := lock.Lock(); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取迁移文件锁失败")
			}
			defer lock.Unlock()
		}
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.Files)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(d.gooseDialect); err != nil {
		return xerrors.Wrap(xerrors.CodeInitialization, err, "设置迁移方言失败")
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return nil
}

// sqlitePath 从 DSN 中提取数据库文件路径；内存库返回空字符串。
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	return filepath.Clean(path)
}
