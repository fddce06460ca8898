package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS surveyResp (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		question TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_surveyresp_session ON surveyResp(session_id)`,
	`CREATE TABLE IF NOT EXISTS trials (
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		json TEXT NOT NULL,
		PRIMARY KEY (session_id, position)
	)`,
}

const insertResponse = `INSERT INTO surveyResp (session_id, question, response, created_at) VALUES (?, ?, ?, ?)`

// SQLiteStore 将试次和答案保存在 SQLite 数据库中
type SQLiteStore struct {
	db     *sql.DB
	path   string
	opts   options
	logger *zap.Logger
}

// OpenSQLite 打开(必要时创建)数据库并建表
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	o := buildOptions(opts)
	s := &SQLiteStore{db: db, path: path, opts: o, logger: o.logger}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path 返回数据库文件路径
func (s *SQLiteStore) Path() string { return s.path }

// Close 关闭数据库连接
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping 检查数据库是否可用
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Trials 返回会话的试次集, 没有时回退到默认试次集
func (s *SQLiteStore) Trials(ctx context.Context, sessionID string) ([]survey.Trial, error) {
	trials, err := s.trialsFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(trials) == 0 && sessionID != DefaultTrialSet {
		return s.trialsFor(ctx, DefaultTrialSet)
	}
	return trials, nil
}

func (s *SQLiteStore) trialsFor(ctx context.Context, sessionID string) ([]survey.Trial, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json FROM trials WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	trials := make([]survey.Trial, 0)
	for rows.Next() {
		var t survey.Trial
		if err := rows.Scan(&t.JSON); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// SeedTrials 在一个事务中替换会话的试次集
func (s *SQLiteStore) SeedTrials(ctx context.Context, sessionID string, pages []survey.Page) error {
	for i, page := range pages {
		if !json.Valid(page) {
			return fmt.Errorf("page %d: %w", i, survey.ErrInvalidPage)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trials WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear trials: %w", err)
	}
	for i, page := range pages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trials (session_id, position, json) VALUES (?, ?, ?)`,
			sessionID, i, string(page)); err != nil {
			return fmt.Errorf("insert trial %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}

	s.logger.Info("seeded trials", zap.String("session", sessionID), zap.Int("count", len(pages)))
	return nil
}

type preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SaveResponses 按顺序为每个答案写入一行。原子模式下任一插入失败
// 会回滚整次提交, 否则失败前写入的行会保留。
func (s *SQLiteStore) SaveResponses(ctx context.Context, sessionID string, responses survey.Responses) error {
	if !s.opts.atomic {
		return s.insertAll(ctx, s.db, sessionID, responses)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	if err := s.insertAll(ctx, tx, sessionID, responses); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insertAll(ctx context.Context, p preparer, sessionID string, responses survey.Responses) error {
	stmt, err := p.PrepareContext(ctx, insertResponse)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.opts.now().UTC()
	for _, a := range responses {
		if _, err := stmt.ExecContext(ctx, sessionID, a.Question, a.Response, now); err != nil {
			return &StoreError{Question: a.Question, Err: err}
		}
	}
	return nil
}

// ListResponses returns the stored rows of sessionID in insertion order.
// An empty sessionID lists every row.
func (s *SQLiteStore) ListResponses(ctx context.Context, sessionID string) ([]ResponseRow, error) {
	query := `SELECT id, session_id, question, response, created_at FROM surveyResp`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	out := make([]ResponseRow, 0)
	for rows.Next() {
		var r ResponseRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Question, &r.Response, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
