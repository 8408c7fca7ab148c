package core

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DatabaseManager 数据库连接管理器（按工作目录隔离）
type DatabaseManager struct {
	dbPath string
	db     *sql.DB
	mu     sync.Mutex
}

var (
	instances = make(map[string]*DatabaseManager)
	instLock  sync.Mutex
)

// GetDBForWorkdir 获取指定工作目录的数据库管理器实例
func GetDBForWorkdir(workdir string) (*DatabaseManager, error) {
	absRoot, err := filepath.Abs(workdir)
	if err != nil {
		return nil, err
	}

	instLock.Lock()
	defer instLock.Unlock()

	if mgr, ok := instances[absRoot]; ok {
		return mgr, nil
	}

	// 工作目录必须真实存在
	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("invalid working directory: %s", absRoot)
	}

	dbPath := filepath.Join(absRoot, ".bmad", "bmad.db")
	mgr := &DatabaseManager{
		dbPath: dbPath,
	}

	if err := mgr.init(); err != nil {
		return nil, err
	}

	instances[absRoot] = mgr
	return mgr, nil
}

func (m *DatabaseManager) init() error {
	// 确保目录存在
	dir := filepath.Dir(m.dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", m.dbPath)
	if err != nil {
		return err
	}

	// 性能与并发优化 (WAL 模式)
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return err
		}
	}

	m.db = db

	// 执行 Schema 自愈
	if err := m.healSchema(); err != nil {
		fmt.Fprintf(os.Stderr, "[DB][WARN] Schema healing failed: %v\n", err)
	}

	return nil
}

func (m *DatabaseManager) healSchema() error {
	// 1. 确保核心表存在
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS task_mappings (
			session_id TEXT PRIMARY KEY,
			task_name TEXT NOT NULL,
			objective TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			stage TEXT,
			event_type TEXT NOT NULL,
			payload TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, s := range schemas {
		if _, err := m.db.Exec(s); err != nil {
			return err
		}
	}

	// 2. 索引优化
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_task_mappings_name ON task_mappings(task_name)",
		"CREATE INDEX IF NOT EXISTS idx_workflow_events_session ON workflow_events(session_id, created_at)",
	}
	for _, idx := range indexes {
		if _, err := m.db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

// Exec 执行写操作
func (m *DatabaseManager) Exec(query string, args ...interface{}) (sql.Result, error) {
	return m.db.Exec(query, args...)
}

// QueryRow 执行单行查询
func (m *DatabaseManager) QueryRow(query string, args ...interface{}) *sql.Row {
	return m.db.QueryRow(query, args...)
}

// Query 执行多行查询
func (m *DatabaseManager) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return m.db.Query(query, args...)
}

// Close 关闭连接
func (m *DatabaseManager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
